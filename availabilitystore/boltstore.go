// Package availabilitystore provides the default embedded
// implementation of modules.AvailabilityStore, backed by a
// Bolt-compatible KV store with write-ahead-logged batches, grounded
// on the teacher's own use of gitlab.com/NebulousLabs/bolt and
// gitlab.com/NebulousLabs/writeaheadlog for persisted renter state.
package availabilitystore

import (
	"context"
	"encoding/json"

	"gitlab.com/NebulousLabs/bolt"
	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/writeaheadlog"

	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

var (
	bucketData   = []byte("available-data")
	bucketChunks = []byte("chunks")
)

// chunkRecord is the JSON-encoded value stored per (candidate, index)
// chunk key; proofs are small enough that JSON is adequate and keeps
// this adapter free of a second serialization dependency.
type chunkRecord struct {
	Chunk []byte   `json:"chunk"`
	Proof [][]byte `json:"proof"`
}

// Store is a Bolt-backed modules.AvailabilityStore.
type Store struct {
	db  *bolt.DB
	wal *writeaheadlog.WAL
}

// Open opens (creating if necessary) a Store at path, along with its
// write-ahead log used to make multi-key chunk batch writes atomic.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.AddContext(err, "opening bolt database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.AddContext(err, "initializing buckets")
	}

	w, _, err := writeaheadlog.New(path + ".wal")
	if err != nil {
		db.Close()
		return nil, errors.AddContext(err, "opening write-ahead log")
	}
	return &Store{db: db, wal: w}, nil
}

// Close releases the underlying database and WAL handles.
func (s *Store) Close() error {
	return errors.Compose(s.wal.Close(), s.db.Close())
}

func dataKey(candidateHash crypto.Hash) []byte {
	return candidateHash[:]
}

func chunkKey(candidateHash crypto.Hash, index modules.ValidatorIndex) []byte {
	key := make([]byte, crypto.HashSize+4)
	copy(key, candidateHash[:])
	key[crypto.HashSize] = byte(index >> 24)
	key[crypto.HashSize+1] = byte(index >> 16)
	key[crypto.HashSize+2] = byte(index >> 8)
	key[crypto.HashSize+3] = byte(index)
	return key
}

// QueryAvailableData implements modules.AvailabilityStore.
func (s *Store) QueryAvailableData(ctx context.Context, candidateHash crypto.Hash) ([]byte, bool, error) {
	var data []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get(dataKey(candidateHash))
		if v == nil {
			return nil
		}
		found = true
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, errors.AddContext(err, "querying available data")
	}
	return data, found, nil
}

// QueryAllChunks implements modules.AvailabilityStore. Store contents
// are trusted (spec.md §4.1 "Seed"): no Merkle re-verification here.
func (s *Store) QueryAllChunks(ctx context.Context, candidateHash crypto.Hash) ([]modules.ErasureChunk, error) {
	var chunks []modules.ErasureChunk
	prefix := candidateHash[:]
	err := s.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketChunks).Cursor()
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var rec chunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.AddContext(err, "decoding stored chunk")
			}
			index := modules.ValidatorIndex(uint32(k[crypto.HashSize])<<24 | uint32(k[crypto.HashSize+1])<<16 | uint32(k[crypto.HashSize+2])<<8 | uint32(k[crypto.HashSize+3]))
			chunks = append(chunks, modules.ErasureChunk{Index: index, Chunk: rec.Chunk, Proof: rec.Proof})
		}
		return nil
	})
	if err != nil {
		return nil, errors.AddContext(err, "querying stored chunks")
	}
	return chunks, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// PutAvailableData persists a locally recovered or locally produced
// payload, e.g. after a successful Recovery Task completes, so a
// future recovery for the same candidate hits Phase 0.
func (s *Store) PutAvailableData(ctx context.Context, candidateHash crypto.Hash, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Put(dataKey(candidateHash), data)
	})
}

// PutChunks persists a batch of chunks atomically via the write-ahead
// log, then commits them into Bolt once the WAL records the intent.
func (s *Store) PutChunks(ctx context.Context, candidateHash crypto.Hash, chunks []modules.ErasureChunk) error {
	updates := make([]writeaheadlog.Update, 0, len(chunks))
	for _, c := range chunks {
		rec, err := json.Marshal(chunkRecord{Chunk: c.Chunk, Proof: c.Proof})
		if err != nil {
			return errors.AddContext(err, "encoding chunk record")
		}
		updates = append(updates, writeaheadlog.Update{
			Name:         "putChunk",
			Instructions: rec,
		})
	}
	txn, err := s.wal.NewTransaction(updates)
	if err != nil {
		return errors.AddContext(err, "starting wal transaction")
	}
	if err := <-txn.SignalSetupComplete(); err != nil {
		return errors.AddContext(err, "signaling wal setup complete")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for i, c := range chunks {
			if err := b.Put(chunkKey(candidateHash, c.Index), updates[i].Instructions); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.AddContext(err, "committing chunks")
	}
	return txn.SignalUpdatesApplied()
}
