package datastore

import (
	"path"
	"testing"

	"github.com/rs/zerolog"
)

func Environment(t *testing.T, f func(filename string)) {
	f(path.Join(t.TempDir(), "datastore"))
}

func open(filename string) *Datastore {
	d, err := Open(filename, zerolog.Nop())
	if err != nil {
		panic(err)
	}
	return d
}
