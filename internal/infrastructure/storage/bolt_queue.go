package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

var (
	queueItemsBucket = []byte("queue_items")
	queueIDsBucket   = []byte("queue_ids")
	queueLiveBucket  = []byte("queue_live")
	queueMetaBucket  = []byte("queue_meta")
	statsKey         = []byte("stats")
)

// BoltQueueStore is the embedded single-node queue backend. Items are keyed by added time so a
// cursor walk yields them oldest first; queue_live maps an article to its non-terminal item.
type BoltQueueStore struct {
	db *bolt.DB
}

var _ ports.QueueStore = (*BoltQueueStore)(nil)

// OpenBoltQueueStore opens (or creates) the queue database at path.
func OpenBoltQueueStore(path string) (*BoltQueueStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{queueItemsBucket, queueIDsBucket, queueLiveBucket, queueMetaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating queue buckets: %w", err)
	}

	return &BoltQueueStore{db: db}, nil
}

func itemKey(item domain.QueueItem) []byte {
	return []byte(fmt.Sprintf("%020d-%s", item.AddedAt.UnixNano(), item.ID))
}

func putItem(tx *bolt.Tx, key []byte, item domain.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := tx.Bucket(queueItemsBucket).Put(key, data); err != nil {
		return err
	}

	live := tx.Bucket(queueLiveBucket)
	if item.Status.Terminal() {
		if current := live.Get([]byte(item.ArticleID)); string(current) == item.ID {
			return live.Delete([]byte(item.ArticleID))
		}
		return nil
	}
	return live.Put([]byte(item.ArticleID), []byte(item.ID))
}

func storageErr(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrAlreadyQueued) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return domain.StorageError(op, err)
}

// Insert performs the live check and the write in one transaction.
func (s *BoltQueueStore) Insert(_ context.Context, item domain.QueueItem) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(queueLiveBucket).Get([]byte(item.ArticleID)) != nil {
			return domain.ErrAlreadyQueued
		}
		key := itemKey(item)
		if err := tx.Bucket(queueIDsBucket).Put([]byte(item.ID), key); err != nil {
			return err
		}
		return putItem(tx, key, item)
	})
	return storageErr("insert queue item", err)
}

func (s *BoltQueueStore) ClaimNext(_ context.Context) (*domain.QueueItem, error) {
	var claimed *domain.QueueItem
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(queueItemsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item domain.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			if item.Status != domain.QueuePending {
				continue
			}
			item.Status = domain.QueueProcessing
			if err := putItem(tx, append([]byte(nil), k...), item); err != nil {
				return err
			}
			claimed = &item
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("claim queue item", err)
	}
	return claimed, nil
}

func (s *BoltQueueStore) Update(_ context.Context, item domain.QueueItem) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(queueIDsBucket).Get([]byte(item.ID))
		if key == nil {
			return domain.ErrNotFound
		}
		return putItem(tx, append([]byte(nil), key...), item)
	})
	return storageErr("update queue item", err)
}

func (s *BoltQueueStore) Counts(_ context.Context) (map[domain.QueueStatus]int, error) {
	counts := make(map[domain.QueueStatus]int, 4)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(queueItemsBucket).ForEach(func(_ []byte, v []byte) error {
			var item domain.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			counts[item.Status]++
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("count queue items", err)
	}
	return counts, nil
}

func (s *BoltQueueStore) Recent(_ context.Context, limit int) ([]domain.QueueItem, error) {
	var items []domain.QueueItem
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(queueItemsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var item domain.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("list queue items", err)
	}
	return items, nil
}

func (s *BoltQueueStore) Clear(_ context.Context) (int, error) {
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(queueItemsBucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		}); err != nil {
			return err
		}
		for _, bucket := range [][]byte{queueItemsBucket, queueIDsBucket, queueLiveBucket} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("clear queue", err)
	}
	return n, nil
}

// ResetFailed walks newest first so only the latest failed item of an article is revived.
func (s *BoltQueueStore) ResetFailed(_ context.Context) (int, error) {
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		live := tx.Bucket(queueLiveBucket)
		type change struct {
			key  []byte
			item domain.QueueItem
		}
		var changes []change
		revived := map[string]bool{}

		c := tx.Bucket(queueItemsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item domain.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			if item.Status != domain.QueueFailed || revived[item.ArticleID] || live.Get([]byte(item.ArticleID)) != nil {
				continue
			}
			item.Status = domain.QueuePending
			item.RetryCount = 0
			item.ProcessedAt = nil
			revived[item.ArticleID] = true
			changes = append(changes, change{key: append([]byte(nil), k...), item: item})
		}

		for _, ch := range changes {
			if err := putItem(tx, ch.key, ch.item); err != nil {
				return err
			}
		}
		n = len(changes)
		return nil
	})
	if err != nil {
		return 0, storageErr("reset failed items", err)
	}
	return n, nil
}

func (s *BoltQueueStore) RequeueProcessing(_ context.Context) (int, error) {
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(queueItemsBucket)
		var keys [][]byte
		var items []domain.QueueItem
		if err := b.ForEach(func(k []byte, v []byte) error {
			var item domain.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			if item.Status == domain.QueueProcessing {
				item.Status = domain.QueuePending
				keys = append(keys, append([]byte(nil), k...))
				items = append(items, item)
			}
			return nil
		}); err != nil {
			return err
		}
		for i := range keys {
			if err := putItem(tx, keys[i], items[i]); err != nil {
				return err
			}
		}
		n = len(keys)
		return nil
	})
	if err != nil {
		return 0, storageErr("requeue processing items", err)
	}
	return n, nil
}

func (s *BoltQueueStore) RecordIndexed(_ context.Context, at time.Time) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(queueMetaBucket)
		var stats domain.IndexingStats
		if data := b.Get(statsKey); data != nil {
			if err := json.Unmarshal(data, &stats); err != nil {
				return err
			}
		}
		stats.TotalIndexed++
		at = at.UTC()
		stats.LastIndexedAt = &at
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return b.Put(statsKey, data)
	})
	return storageErr("record indexed", err)
}

func (s *BoltQueueStore) Stats(_ context.Context) (domain.IndexingStats, error) {
	var stats domain.IndexingStats
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(queueMetaBucket).Get(statsKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	if err != nil {
		return domain.IndexingStats{}, storageErr("read indexing stats", err)
	}
	return stats, nil
}

func (s *BoltQueueStore) Close() error {
	return s.db.Close()
}
