// Package datastore keeps JSON documents in memory and answers the block
// requests of the server-side row model. Every change is appended to a
// journal file that is replayed on open.
package datastore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/utils"
)

var ErrClosed = errors.New("datastore is closed")

type Row struct {
	Seq     int64
	Payload jsontext.Value
	Data    map[string]any
}

type Datastore struct {
	filename string
	file     *os.File
	mutex    sync.RWMutex
	rows     *btree.BTreeG[*Row]
	nextSeq  int64
	indexes  map[string]*Index
	log      zerolog.Logger
}

func Open(filename string, log zerolog.Logger) (*Datastore, error) {

	f, err := os.OpenFile(filename, os.O_RDONLY|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("open file for read: %w", err)
	}
	defer f.Close()

	d := &Datastore{
		filename: filename,
		rows: btree.NewG(32, func(a, b *Row) bool {
			return a.Seq < b.Seq
		}),
		indexes: map[string]*Index{},
		log:     log.With().Str("datastore", filename).Logger(),
	}

	decoder := jsontext.NewDecoder(f)
	for {
		value, err := decoder.ReadValue()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
		command := &Command{}
		err = json2.Unmarshal(value, command)
		if err != nil {
			return nil, fmt.Errorf("decode command: %w", err)
		}
		d.replay(command)
	}

	d.file, err = os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("open file for write: %w", err)
	}

	return d, nil
}

// replay applies a journal command. A command that no longer applies is
// skipped with a warning.
func (d *Datastore) replay(command *Command) {
	log := d.log.With().Str("command", command.Name).Str("uuid", command.Uuid).Logger()

	switch command.Name {
	case CommandInsert:
		_, err := d.addRow(command.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("skip insert")
		}
	case CommandRemove:
		params := removePayload{}
		err := json2.Unmarshal(command.Payload, &params)
		if err != nil {
			log.Warn().Err(err).Msg("skip remove")
			return
		}
		if d.removeRow(params.Seq) == nil {
			log.Warn().Int64("seq", params.Seq).Msg("remove: row does not exist")
		}
	case CommandIndex:
		options := &IndexOptions{}
		err := json2.Unmarshal(command.Payload, options)
		if err == nil {
			err = d.createIndex(options)
		}
		if err != nil {
			log.Warn().Err(err).Msg("skip index")
		}
	default:
		log.Warn().Msg("unknown command")
	}
}

func (d *Datastore) persist(name string, payload any) error {

	raw, err := json2.Marshal(payload)
	if err != nil {
		return fmt.Errorf("json encode payload: %w", err)
	}

	command := &Command{
		Name:      name,
		Uuid:      uuid.New().String(),
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}

	line, err := json2.Marshal(command)
	if err != nil {
		return fmt.Errorf("json encode command: %w", err)
	}
	_, err = d.file.Write(append(line, '\n'))
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	return nil
}

func (d *Datastore) addRow(payload jsontext.Value) (*Row, error) {

	row := &Row{
		Seq:     d.nextSeq,
		Payload: payload,
		Data:    map[string]any{},
	}
	err := json2.Unmarshal(payload, &row.Data)
	if err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}

	indexed := []*Index{}
	for _, name := range utils.GetKeys(d.indexes) {
		index := d.indexes[name]
		err := index.addRow(row)
		if err != nil {
			for _, done := range indexed {
				done.removeRow(row)
			}
			return nil, fmt.Errorf("index '%s': %w", name, err)
		}
		indexed = append(indexed, index)
	}

	d.rows.ReplaceOrInsert(row)
	d.nextSeq++

	return row, nil
}

// Insert adds item, which must encode as a JSON object.
func (d *Datastore) Insert(item any) (*Row, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return nil, ErrClosed
	}

	payload, err := json2.Marshal(item, json2.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("json encode item: %w", err)
	}

	row, err := d.addRow(payload)
	if err != nil {
		return nil, err
	}

	err = d.persist(CommandInsert, jsontext.Value(payload))
	if err != nil {
		return nil, err
	}

	return row, nil
}

func (d *Datastore) removeRow(seq int64) *Row {
	row, found := d.rows.Delete(&Row{Seq: seq})
	if !found {
		return nil
	}
	for _, index := range d.indexes {
		index.removeRow(row)
	}
	return row
}

func (d *Datastore) Remove(seq int64) (*Row, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return nil, ErrClosed
	}

	row := d.removeRow(seq)
	if row == nil {
		return nil, fmt.Errorf("row %d does not exist", seq)
	}

	err := d.persist(CommandRemove, removePayload{Seq: seq})
	if err != nil {
		return nil, err
	}

	return row, nil
}

func (d *Datastore) createIndex(options *IndexOptions) error {

	if len(options.Fields) == 0 {
		return fmt.Errorf("index needs at least one field")
	}
	if options.Name == "" {
		options.Name = strings.Join(options.Fields, ",")
	}
	if _, exists := d.indexes[options.Name]; exists {
		return fmt.Errorf("index '%s' already exists", options.Name)
	}

	index := newIndex(options)
	var err error
	d.rows.Ascend(func(row *Row) bool {
		err = index.addRow(row)
		if err != nil {
			err = fmt.Errorf("index row %d: %w", row.Seq, err)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	d.indexes[options.Name] = index
	return nil
}

// CreateIndex builds a sorted index over the current rows. Block requests
// whose sort model matches the index order are served from it.
func (d *Datastore) CreateIndex(options *IndexOptions) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return ErrClosed
	}

	err := d.createIndex(options)
	if err != nil {
		return err
	}

	return d.persist(CommandIndex, options)
}

func (d *Datastore) Indexes() []*IndexOptions {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	result := []*IndexOptions{}
	for _, name := range utils.GetKeys(d.indexes) {
		result = append(result, d.indexes[name].Options)
	}
	return result
}

func (d *Datastore) Get(seq int64) *Row {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	row, _ := d.rows.Get(&Row{Seq: seq})
	return row
}

func (d *Datastore) Len() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.rows.Len()
}

// Traverse visits rows in insertion order until f returns false.
func (d *Datastore) Traverse(f func(row *Row) bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	d.rows.Ascend(f)
}

func (d *Datastore) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *Datastore) Drop() error {
	err := d.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	err = os.Remove(d.filename)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}
