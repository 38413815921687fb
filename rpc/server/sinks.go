package server

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Log Sink
// --------------------------------------------------------------------------

// LogSink writes every aggregate to the server logger
type LogSink struct{}

func (LogSink) Write(flushed time.Time, items []PerfItem) error {
	for _, it := range items {
		Logger.Infof("perf %s | calls %d | failures %d | avg %.0fµs | p99 %.0fµs | max %dµs",
			it.Key, it.Calls, it.Failures, it.AvgMicros, it.P99Micros, it.MaxMicros)
	}
	return nil
}

func (LogSink) Close() error { return nil }

// --------------------------------------------------------------------------
// Bolt Sink
// --------------------------------------------------------------------------

const perfBucket = "perf_v1"

// PerfRecord is one stored aggregate
type PerfRecord struct {
	Flushed time.Time `json:"flushed"`
	PerfItem
}

// BoltSink persists the aggregates in a bbolt database. Keys are
// "<flush time>/<perf key>" so a cursor walks the records in time order.
type BoltSink struct {
	db *bolt.DB
}

// OpenBoltSink opens (or creates) the database at path
func OpenBoltSink(path string) (*BoltSink, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open perf db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(perfBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltSink{db: db}, nil
}

func (s *BoltSink) Write(flushed time.Time, items []PerfItem) error {
	stamp := flushed.UTC().Format("20060102T150405.000000000")
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(perfBucket))
		for _, it := range items {
			bs, err := json.Marshal(PerfRecord{Flushed: flushed, PerfItem: it})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(stamp+"/"+it.Key), bs); err != nil {
				return err
			}
		}
		return nil
	})
}

// Records returns the stored records flushed at or after since, oldest first
func (s *BoltSink) Records(since time.Time) ([]PerfRecord, error) {
	var out []PerfRecord
	from := []byte(since.UTC().Format("20060102T150405.000000000"))
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(perfBucket)).Cursor()
		for k, v := c.Seek(from); k != nil; k, v = c.Next() {
			var rec PerfRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				// skip malformed entry
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (s *BoltSink) Close() error { return s.db.Close() }
