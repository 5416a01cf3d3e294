package chunks

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/nickyhof/TreeDB/hash"
)

var badgerPrefix = []byte("c/")

const maxConflictRetries = 8

// BadgerStore keeps chunks in a badger database, keyed by "c/" + hash bytes.
type BadgerStore struct {
	db          *badger.DB
	compression Compression
	counters
}

// NewBadgerStore opens a badger database. Writes are always synced.
func NewBadgerStore(opts badger.Options, compression Compression) (*BadgerStore, error) {
	db, err := badger.Open(opts.WithSyncWrites(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db, compression: compression}, nil
}

func badgerKey(h hash.Hash) []byte {
	key := make([]byte, 0, len(badgerPrefix)+hash.ByteLen)
	key = append(key, badgerPrefix...)
	return append(key, h[:]...)
}

func (s *BadgerStore) Get(_ context.Context, h hash.Hash) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(h))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(h)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", h, err)
	}
	s.reads.Add(1)

	data, err := decodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", h, err)
	}
	if err := verify(h, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BadgerStore) Has(_ context.Context, h hash.Hash) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(h))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put inserts the chunk if absent. Two transactions racing on the same key
// conflict; the loser retries and then observes the winner's copy.
func (s *BadgerStore) Put(_ context.Context, data []byte) (hash.Hash, error) {
	h := hash.Of(data)
	key := badgerKey(h)
	payload := encodePayload(data, s.compression)

	for attempt := 0; ; attempt++ {
		var existed bool
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			if err == nil {
				existed = true
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return txn.Set(key, payload)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return hash.Hash{}, fmt.Errorf("failed to write chunk %s: %w", h, err)
		}
		if existed {
			s.dedups.Add(1)
		} else {
			s.writes.Add(1)
		}
		return h, nil
	}
}

func (s *BadgerStore) Hashes(ctx context.Context, fn func(hash.Hash) error) error {
	var hashes []hash.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			h, err := hash.New(key[len(badgerPrefix):])
			if err != nil {
				continue
			}
			hashes = append(hashes, h)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, h := range hashes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, h hash.Hash) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(h))
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", h, err)
	}
	s.deletes.Add(1)
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
