package datastore

import (
	"github.com/go-json-experiment/json/jsontext"
)

const (
	CommandInsert = "insert"
	CommandRemove = "remove"
	CommandIndex  = "index"
)

// Command is one line of the journal.
type Command struct {
	Name      string         `json:"name"`
	Uuid      string         `json:"uuid"`
	Timestamp int64          `json:"timestamp"`
	Payload   jsontext.Value `json:"payload"`
}

type removePayload struct {
	Seq int64 `json:"seq"`
}
