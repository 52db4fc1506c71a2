// Package storage persists computed dashboard summaries in BoltDB so a restart
// with unchanged dataset files does not recompute the aggregates.
//
// Entries are keyed by the dataset fingerprint, the content hash of both input
// files. A changed file yields a new key; stale entries can be pruned.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"trader-insights/internal/analytics"

	"go.etcd.io/bbolt"
)

const (
	dbFile         = "insights-cache.db"
	summaryBucket  = "summaries" // Bucket name for cached dashboard summaries
	summaryVersion = 1           // Bumped when the Summary layout changes
)

// Entry is a cached summary together with when it was computed
type Entry struct {
	Version    int               `json:"version"`
	ComputedAt time.Time         `json:"computed_at"`
	Summary    analytics.Summary `json:"summary"`
}

// Store is a BoltDB backed summary cache. It is safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the cache database inside dataPath
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(summaryBucket)); err != nil {
			return fmt.Errorf("create summaries bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call on a nil or closed store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutSummary stores summary under fingerprint, replacing any previous entry
func (s *Store) PutSummary(fingerprint string, summary analytics.Summary) error {
	if fingerprint == "" {
		return fmt.Errorf("empty fingerprint")
	}

	data, err := json.Marshal(Entry{
		Version:    summaryVersion,
		ComputedAt: time.Now().UTC(),
		Summary:    summary,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(summaryBucket)).Put([]byte(fingerprint), data)
	})
}

// GetSummary returns the summary cached under fingerprint. The boolean is false
// when nothing is cached or the entry was written by an older layout.
func (s *Store) GetSummary(fingerprint string) (analytics.Summary, bool, error) {
	entry, ok, err := s.GetEntry(fingerprint)
	if err != nil || !ok {
		return analytics.Summary{}, false, err
	}
	return entry.Summary, true, nil
}

// GetEntry is GetSummary with the entry metadata
func (s *Store) GetEntry(fingerprint string) (Entry, bool, error) {
	var entry Entry
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(summaryBucket)).Get([]byte(fingerprint))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("unmarshal summary %s: %w", fingerprint, err)
		}
		found = entry.Version == summaryVersion
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return entry, found, nil
}

// PruneExcept deletes every cached summary whose key is not keep and returns
// the number of entries removed
func (s *Store) PruneExcept(keep string) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(summaryBucket))

		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) != keep {
				stale = append(stale, append([]byte(nil), k...))
			}
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete summary %s: %w", k, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
