package service

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance walks the HTTP API as a datasource client would. apiRequest
// receives paths relative to the API version prefix.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	medals := []JSON{
		{"id": "1", "country": "Spain", "sport": "Sailing", "gold": 2},
		{"id": "2", "country": "France", "sport": "Fencing", "gold": 4},
		{"id": "3", "country": "Spain", "sport": "Tennis", "gold": 1},
		{"id": "4", "country": "Italy", "sport": "Fencing", "gold": 3},
	}

	a.Alternative("Insert rows", func(a *biff.A) {

		body := ""
		for _, medal := range medals {
			line, _ := json.Marshal(medal)
			body += string(line) + "\n"
		}
		resp := apiRequest("POST", "/datastores/medals:insert").
			WithBodyString(body).Do()
		Save(resp, "Insert rows", `
			Inserts a stream of JSON objects. The datastore is created on the
			first insert.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		dec := json.NewDecoder(strings.NewReader(resp.BodyString()))
		for _, medal := range medals {
			var row interface{}
			biff.AssertNil(dec.Decode(&row))
			biff.AssertEqualJson(row, medal)
		}

		a.Alternative("Retrieve datastore", func(a *biff.A) {
			resp := apiRequest("GET", "/datastores/medals").Do()
			Save(resp, "Retrieve datastore", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"name":    "medals",
				"total":   4,
				"indexes": []JSON{},
			})
		})

		a.Alternative("List datastores", func(a *biff.A) {
			resp := apiRequest("GET", "/datastores").Do()
			Save(resp, "List datastores", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{
				{"name": "medals", "total": 4, "indexes": []JSON{}},
			})
		})

		a.Alternative("Get rows", func(a *biff.A) {
			resp := apiRequest("POST", "/datastores/medals:getRows").
				WithBodyJson(JSON{
					"startRow":  0,
					"endRow":    2,
					"sortModel": []JSON{{"colId": "gold", "sort": "desc"}},
				}).Do()
			Save(resp, "Get rows", `
				Answers one block of the server-side row model.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"rowData":  []JSON{medals[1], medals[3]},
				"rowCount": 4,
			})
		})

		a.Alternative("Get group rows", func(a *biff.A) {
			request := JSON{
				"startRow":     0,
				"endRow":       100,
				"rowGroupCols": []JSON{{"id": "country", "field": "country"}},
				"valueCols":    []JSON{{"id": "gold", "field": "gold", "aggFunc": "sum"}},
			}
			resp := apiRequest("POST", "/datastores/medals:getRows").
				WithBodyJson(request).Do()
			Save(resp, "Get rows - groups", `
				Above the deepest grouping level there is one row per group,
				with the value columns aggregated.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"rowData": []JSON{
					{"country": "Spain", "gold": 3},
					{"country": "France", "gold": 4},
					{"country": "Italy", "gold": 3},
				},
				"rowCount": 3,
			})

			a.Alternative("Get group children", func(a *biff.A) {
				request["groupKeys"] = []string{"Spain"}
				resp := apiRequest("POST", "/datastores/medals:getRows").
					WithBodyJson(request).Do()
				Save(resp, "Get rows - group children", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), JSON{
					"rowData":  []JSON{medals[0], medals[2]},
					"rowCount": 2,
				})
			})

			a.Alternative("Unknown aggregation", func(a *biff.A) {
				request["valueCols"] = []JSON{{"id": "gold", "aggFunc": "median"}}
				resp := apiRequest("POST", "/datastores/medals:getRows").
					WithBodyJson(request).Do()

				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
			})
		})

		a.Alternative("Create index", func(a *biff.A) {
			resp := apiRequest("POST", "/datastores/medals:createIndex").
				WithBodyJson(JSON{"fields": []string{"-gold"}, "unique": true}).Do()
			Save(resp, "Create index", `
				Block requests sorted the way of an index are served from it.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusCreated)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"name":   "-gold",
				"fields": []string{"-gold"},
				"unique": true,
				"sparse": false,
			})

			a.Alternative("Insert conflict", func(a *biff.A) {
				resp := apiRequest("POST", "/datastores/medals:insert").
					WithBodyJson(JSON{"id": "5", "gold": 4}).Do()

				biff.AssertEqual(resp.StatusCode, http.StatusConflict)
			})
		})

		a.Alternative("Drop datastore", func(a *biff.A) {
			resp := apiRequest("POST", "/datastores/medals:dropDatastore").Do()
			Save(resp, "Drop datastore", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			a.Alternative("Get dropped datastore", func(a *biff.A) {
				resp := apiRequest("GET", "/datastores/medals").Do()
				Save(resp, "Retrieve datastore - not found", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})
	})

	a.Alternative("Get rows - not found", func(a *biff.A) {
		resp := apiRequest("POST", "/datastores/missing:getRows").
			WithBodyJson(JSON{"startRow": 0, "endRow": 100}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"error": JSON{
				"message":     "datastore not found",
				"description": "datastore 'missing' does not exist",
			},
		})
	})

	a.Alternative("Insert malformed JSON", func(a *biff.A) {
		resp := apiRequest("POST", "/datastores/broken:insert").
			WithBodyString(`{"name": `).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Insert nothing", func(a *biff.A) {
		resp := apiRequest("POST", "/datastores/empty:insert").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNoContent)
	})
}
