// Package storage is the persisted-state component: a bbolt-backed
// key-value store exposed to the rest of the reactor only through typed
// requests, per spec section 6's "interfaces, not layout" contract.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketBlocks  = []byte("blocks")
	bucketDeploys = []byte("deploys")
)

// Block is the minimal on-chain block record the core needs to persist;
// contract-runtime and consensus-internal fields are out of scope.
type Block struct {
	Hash       [32]byte
	Height     uint64
	ParentHash [32]byte
	Timestamp  int64
	DeployHashes [][32]byte
}

// Deploy is a minimal persisted deploy record.
type Deploy struct {
	Hash    [32]byte
	Payload []byte
}

// Store is the storage engine's public surface. The reactor component
// wraps it with typed requests; Store itself is ordinary synchronous Go,
// grounded on the teacher's BoltStore.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at dataDir/ridgeback.db
// and ensures the buckets this store needs exist.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "ridgeback.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlocks, bucketDeploys} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutBlock persists block, keyed by its hash.
func (s *Store) PutBlock(block Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(block)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBlocks).Put(block.Hash[:], data)
	})
}

// GetBlock retrieves the block with the given hash, or ok=false if absent.
func (s *Store) GetBlock(hash [32]byte) (Block, bool, error) {
	var block Block
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlocks).Get(hash[:])
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &block)
	})
	return block, found, err
}

// PutDeploy persists deploy, keyed by its hash.
func (s *Store) PutDeploy(deploy Deploy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeploys).Put(deploy.Hash[:], deploy.Payload)
	})
}

// GetDeploy retrieves the deploy with the given hash, or ok=false if absent.
func (s *Store) GetDeploy(hash [32]byte) (Deploy, bool, error) {
	var deploy Deploy
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDeploys).Get(hash[:])
		if data == nil {
			return nil
		}
		found = true
		deploy = Deploy{Hash: hash, Payload: append([]byte(nil), data...)}
		return nil
	})
	return deploy, found, err
}
