package journal

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketActions = []byte("actions")

// indexEntry is the value stored per masterActionId in journal.db. The
// plain files under ActionJournal/ remain authoritative; this index only
// accelerates lookups and drives the retention sweep.
type indexEntry struct {
	Dir           string    `json:"dir"`
	OverallStatus string    `json:"overallStatus"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
}

type index struct {
	db *bolt.DB
}

func openIndex(path string) (*index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("journal: open index %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketActions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init index %s: %w", path, err)
	}
	return &index{db: db}, nil
}

func (i *index) close() error {
	return i.db.Close()
}

func (i *index) put(masterActionID string, e indexEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketActions).Put([]byte(masterActionID), data)
	})
}

func (i *index) lookupDir(masterActionID string) (string, bool) {
	e, ok := i.get(masterActionID)
	if !ok {
		return "", false
	}
	return e.Dir, true
}

func (i *index) get(masterActionID string) (indexEntry, bool) {
	var e indexEntry
	var found bool
	i.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketActions).Get([]byte(masterActionID))
		if data == nil {
			return nil
		}
		found = json.Unmarshal(data, &e) == nil
		return nil
	})
	return e, found
}

// forEach walks the whole index, used by the retention sweep.
func (i *index) forEach(fn func(masterActionID string, e indexEntry) error) error {
	return i.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketActions).ForEach(func(k, v []byte) error {
			var e indexEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			return fn(string(k), e)
		})
	})
}

func (i *index) delete(masterActionID string) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketActions).Delete([]byte(masterActionID))
	})
}
