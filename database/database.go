package database

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/datastore"
	"github.com/fulldump/rowmodel/utils"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

type Config struct {
	Dir    string
	Logger zerolog.Logger
}

type Database struct {
	Config     *Config
	status     string
	mutex      sync.RWMutex
	datastores map[string]*datastore.Datastore
	exit       chan struct{}
	log        zerolog.Logger
}

func NewDatabase(config *Config) *Database {
	return &Database{
		Config:     config,
		status:     StatusOpening,
		datastores: map[string]*datastore.Datastore{},
		exit:       make(chan struct{}),
		log:        config.Logger.With().Str("component", "database").Logger(),
	}
}

func (db *Database) GetStatus() string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.status
}

func (db *Database) setStatus(status string) {
	db.mutex.Lock()
	db.status = status
	db.mutex.Unlock()
}

func (db *Database) CreateDatastore(name string) (*datastore.Datastore, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, exists := db.datastores[name]; exists {
		return nil, fmt.Errorf("datastore '%s' already exists", name)
	}

	d, err := datastore.Open(path.Join(db.Config.Dir, name), db.Config.Logger)
	if err != nil {
		return nil, err
	}
	db.datastores[name] = d

	return d, nil
}

func (db *Database) GetDatastore(name string) (*datastore.Datastore, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	d, exists := db.datastores[name]
	return d, exists
}

// Names lists the open datastores alphabetically.
func (db *Database) Names() []string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	return utils.GetKeys(db.datastores)
}

func (db *Database) DropDatastore(name string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	d, exists := db.datastores[name]
	if !exists {
		return fmt.Errorf("datastore '%s' not found", name)
	}

	err := d.Drop()
	if err != nil {
		return fmt.Errorf("drop datastore '%s': %w", name, err)
	}
	delete(db.datastores, name)

	return nil
}

// Load opens every journal under Dir. Each file is a datastore named after
// its path relative to Dir.
func (db *Database) Load() error {

	dir := db.Config.Dir
	db.log.Info().Str("dir", dir).Msg("loading database")

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(dir, func(filename string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := strings.TrimPrefix(filename, dir)
		name = strings.TrimPrefix(name, "/")

		t0 := time.Now()
		ds, err := datastore.Open(filename, db.Config.Logger)
		if err != nil {
			db.log.Error().Err(err).Str("file", filename).Msg("open datastore")
			return err
		}
		db.log.Info().Str("datastore", name).Int("rows", ds.Len()).Dur("took", time.Since(t0)).Msg("datastore loaded")

		db.mutex.Lock()
		db.datastores[name] = ds
		db.mutex.Unlock()

		return nil
	})

	if err != nil {
		db.setStatus(StatusClosing)
		return err
	}

	db.setStatus(StatusOperating)

	return nil
}

func (db *Database) Start() error {

	go db.Load()

	<-db.exit

	return nil
}

func (db *Database) Stop() error {

	defer close(db.exit)

	db.setStatus(StatusClosing)

	db.mutex.Lock()
	defer db.mutex.Unlock()

	var lastErr error
	for name, d := range db.datastores {
		db.log.Info().Str("datastore", name).Msg("closing")
		err := d.Close()
		if err != nil {
			db.log.Error().Err(err).Str("datastore", name).Msg("close")
			lastErr = err
		}
	}

	return lastErr
}
