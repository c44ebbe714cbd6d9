package service

import (
	"errors"

	"github.com/fulldump/rowmodel/datastore"
)

var ErrorDatastoreNotFound = errors.New("datastore not found")
var ErrorDatastoreAlreadyExists = errors.New("datastore already exists")

type Servicer interface {
	CreateDatastore(name string) (*datastore.Datastore, error)
	GetDatastore(name string) (*datastore.Datastore, error)
	Describe(name string) (*Summary, error)
	ListDatastores() []*Summary
	DropDatastore(name string) error
}
