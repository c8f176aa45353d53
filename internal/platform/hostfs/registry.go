package hostfs

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// Bucket names
var (
	bucketTitlesSD    = []byte("titles.sd")
	bucketTitlesNAND  = []byte("titles.nand")
	bucketPendingSD   = []byte("pending.sd")
	bucketPendingNAND = []byte("pending.nand")
	bucketTickets     = []byte("tickets")
	bucketExtSave     = []byte("extsave")
	bucketSysSave     = []byte("syssave")
	bucketSystem      = []byte("system")

	allBuckets = [][]byte{
		bucketTitlesSD, bucketTitlesNAND, bucketPendingSD, bucketPendingNAND,
		bucketTickets, bucketExtSave, bucketSysSave, bucketSystem,
	}
)

type titleRecord struct {
	ID          uint64             `json:"id"`
	Media       platform.MediaType `json:"media"`
	Version     uint16             `json:"version"`
	ProductCode string             `json:"product_code,omitempty"`
	Meta        *platform.Metadata `json:"meta,omitempty"`
	File        string             `json:"file"`
}

type pendingRecord struct {
	ID      uint64             `json:"id"`
	Media   platform.MediaType `json:"media"`
	Version uint16             `json:"version"`
	File    string             `json:"file"`
}

type ticketRecord struct {
	ID   uint64 `json:"id"`
	File string `json:"file,omitempty"`
}

type saveRecord struct {
	ID    uint64             `json:"id"`
	Media platform.MediaType `json:"media"`
	Meta  *platform.Metadata `json:"meta,omitempty"`
}

type firmwareRecord struct {
	ID uint64 `json:"id"`
}

func titleBucket(media platform.MediaType) ([]byte, error) {
	switch media {
	case platform.MediaSD:
		return bucketTitlesSD, nil
	case platform.MediaNAND:
		return bucketTitlesNAND, nil
	}
	return nil, fmt.Errorf("titles on %s: %w", media, platform.ResultInvalidArgument)
}

func pendingBucket(media platform.MediaType) ([]byte, error) {
	switch media {
	case platform.MediaSD:
		return bucketPendingSD, nil
	case platform.MediaNAND:
		return bucketPendingNAND, nil
	}
	return nil, fmt.Errorf("pending titles on %s: %w", media, platform.ResultInvalidArgument)
}

// === Generic helpers ===

func (c *Console) get(bucket []byte, key string, dest interface{}) (bool, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (c *Console) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (c *Console) delete(bucket []byte, key string) (bool, error) {
	found := false
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) == nil {
			return nil
		}
		found = true
		return b.Delete([]byte(key))
	})
	return found, err
}

// each decodes every value of bucket in key order.
func each[T any](c *Console, bucket []byte, fn func(T)) error {
	return c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("registry %s/%s: %w", bucket, k, err)
			}
			fn(rec)
			return nil
		})
	})
}
