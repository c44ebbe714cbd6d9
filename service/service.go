package service

import (
	"fmt"

	"github.com/fulldump/rowmodel/database"
	"github.com/fulldump/rowmodel/datastore"
)

type Service struct {
	db *database.Database
}

func NewService(db *database.Database) *Service {
	return &Service{
		db: db,
	}
}

// Summary describes a datastore without its rows.
type Summary struct {
	Name    string                    `json:"name"`
	Total   int                       `json:"total"`
	Indexes []*datastore.IndexOptions `json:"indexes"`
}

func summarize(name string, d *datastore.Datastore) *Summary {
	return &Summary{
		Name:    name,
		Total:   d.Len(),
		Indexes: d.Indexes(),
	}
}

func (s *Service) CreateDatastore(name string) (*datastore.Datastore, error) {

	if _, exists := s.db.GetDatastore(name); exists {
		return nil, ErrorDatastoreAlreadyExists
	}

	d, err := s.db.CreateDatastore(name)
	if err != nil {
		return nil, fmt.Errorf("create datastore: %w", err)
	}

	return d, nil
}

func (s *Service) GetDatastore(name string) (*datastore.Datastore, error) {
	d, exists := s.db.GetDatastore(name)
	if !exists {
		return nil, ErrorDatastoreNotFound
	}
	return d, nil
}

func (s *Service) Describe(name string) (*Summary, error) {
	d, err := s.GetDatastore(name)
	if err != nil {
		return nil, err
	}
	return summarize(name, d), nil
}

func (s *Service) ListDatastores() []*Summary {
	result := []*Summary{}
	for _, name := range s.db.Names() {
		if d, exists := s.db.GetDatastore(name); exists {
			result = append(result, summarize(name, d))
		}
	}
	return result
}

func (s *Service) DropDatastore(name string) error {
	if _, exists := s.db.GetDatastore(name); !exists {
		return ErrorDatastoreNotFound
	}
	return s.db.DropDatastore(name)
}
