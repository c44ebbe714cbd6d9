package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fulldump/box"
	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/rowmodel/datastore"
	"github.com/fulldump/rowmodel/service"
)

// insert reads a stream of JSON objects and echoes every stored row. The
// datastore is created with the first row. Once the stream has started, a
// failure is reported as a last error object.
func insert(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	s := GetServicer(ctx)
	name := box.GetUrlParameter(ctx, "datastoreName")

	decoder := jsontext.NewDecoder(r.Body)
	var d *datastore.Datastore

	for i := 0; ; i++ {
		value, err := decoder.ReadValue()
		if err == io.EOF {
			if i == 0 {
				w.WriteHeader(http.StatusNoContent)
			}
			return nil
		}
		if err != nil {
			return failStream(w, i, &HttpError{Status: http.StatusBadRequest, Err: err, Description: "Malformed JSON"})
		}

		if d == nil {
			d, err = s.GetDatastore(name)
			if errors.Is(err, service.ErrorDatastoreNotFound) {
				d, err = s.CreateDatastore(name)
			}
			if err != nil {
				return err
			}
		}

		row, err := d.Insert(value)
		if err != nil {
			return failStream(w, i, &HttpError{Status: http.StatusConflict, Err: err, Description: "row cannot be inserted"})
		}

		if i == 0 {
			w.WriteHeader(http.StatusCreated)
		}
		w.Write(row.Payload)
		w.Write([]byte("\n"))
	}
}

func failStream(w http.ResponseWriter, i int, err *HttpError) error {
	if i == 0 {
		return err
	}
	json2.MarshalWrite(w, map[string]PrettyError{
		"error": {Message: err.Error(), Description: err.Description},
	})
	return nil
}
