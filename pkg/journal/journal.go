// Package journal appends one record per completed run to a local bolt
// database, keyed by start time, so a sequence of harness invocations stays
// auditable after the fact.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hed1ad/tsguard/pkg/errors"
)

var bucketRuns = []byte("runs")

// openTimeout bounds how long Open waits for the database file lock.
const openTimeout = 2 * time.Second

// Record is one journaled run.
type Record struct {
	Started       time.Time     `json:"started"`
	Algorithm     string        `json:"algorithm"`
	ExecutionType string        `json:"execution_type"`
	DataInput     string        `json:"data_input"`
	DataOutput    string        `json:"data_output,omitempty"`
	ModelInput    string        `json:"model_input,omitempty"`
	ModelOutput   string        `json:"model_output,omitempty"`
	Channels      []string      `json:"channels,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	Error         string        `json:"error,omitempty"`
}

// Journal is an append-only run log backed by a bolt file.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "opening run journal %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "preparing run journal %s", path)
	}
	return &Journal{db: db}, nil
}

// Close releases the database file.
func (j *Journal) Close() error { return j.db.Close() }

// Append stores rec keyed by its start time. Records sharing a start
// timestamp get an incrementing suffix so none are overwritten.
func (j *Journal) Append(rec Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encoding run record")
	}
	base := rec.Started.UTC().Format(time.RFC3339Nano)

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		key := []byte(base)
		for i := 1; b.Get(key) != nil; i++ {
			key = []byte(fmt.Sprintf("%s:%03d", base, i))
		}
		return b.Put(key, blob)
	})
}

// List returns the most recent records, newest first. A limit of 0 returns
// everything.
func (j *Journal) List(limit int) ([]Record, error) {
	var out []Record
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "decoding run record %s", k)
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}
