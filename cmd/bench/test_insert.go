package main

import (
	"bufio"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var countries = []string{"Spain", "France", "Italy", "Portugal", "Germany"}
var sports = []string{"Sailing", "Fencing", "Tennis", "Rowing"}

// TestInsert streams c.N rows into a new datastore and returns its name.
// Every worker holds one insert request open and writes rows into its body
// as they are generated.
func TestInsert(c *Config) string {

	EnsureServer(c)
	name := DatastoreName()

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     c.Workers,
			MaxIdleConnsPerHost: c.Workers,
		},
	}

	remaining := c.N
	var failed int64

	t0 := time.Now()
	Parallel(c.Workers, func() {

		r, w := io.Pipe()
		go func() {
			wb := bufio.NewWriterSize(w, 1024*1024)
			enc := jsontext.NewEncoder(wb)
			for {
				n := atomic.AddInt64(&remaining, -1)
				if n < 0 {
					break
				}
				err := json2.MarshalEncode(enc, newMedal(n))
				if err != nil {
					w.CloseWithError(err)
					return
				}
			}
			w.CloseWithError(wb.Flush())
		}()

		resp, err := client.Post(c.Base+"/v1/datastores/"+name+":insert", "application/json", r)
		if err != nil {
			atomic.AddInt64(&failed, 1)
			log.Error().Err(err).Msg("insert request")
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 300 {
			atomic.AddInt64(&failed, 1)
			log.Error().Int("status", resp.StatusCode).Msg("insert response")
		}
	})

	took := time.Since(t0)
	log.Info().
		Str("datastore", name).
		Int64("rows", c.N).
		Int64("failed_workers", failed).
		Dur("took", took).
		Float64("rows_per_sec", float64(c.N)/took.Seconds()).
		Msg("insert")

	return name
}

type medal struct {
	ID      int64  `json:"id"`
	Country string `json:"country"`
	Sport   string `json:"sport"`
	Gold    int64  `json:"gold"`
}

func newMedal(n int64) medal {
	return medal{
		ID:      n,
		Country: countries[n%int64(len(countries))],
		Sport:   sports[n%int64(len(sports))],
		Gold:    n % 7,
	}
}
