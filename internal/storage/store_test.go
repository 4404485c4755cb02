package storage

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutAndGetBlock(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	hash := sha256.Sum256([]byte("block-1"))
	parent := sha256.Sum256([]byte("genesis"))
	block := Block{
		Hash:         hash,
		Height:       1,
		ParentHash:   parent,
		Timestamp:    1700000000,
		DeployHashes: [][32]byte{sha256.Sum256([]byte("deploy-1"))},
	}

	require.NoError(t, store.PutBlock(block))

	got, found, err := store.GetBlock(hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, block, got)
}

func TestStoreGetBlockMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.GetBlock(sha256.Sum256([]byte("absent")))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStorePutAndGetDeploy(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	hash := sha256.Sum256([]byte("deploy-1"))
	deploy := Deploy{Hash: hash, Payload: []byte("payload bytes")}

	require.NoError(t, store.PutDeploy(deploy))

	got, found, err := store.GetDeploy(hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, deploy, got)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	hash := sha256.Sum256([]byte("persisted"))

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.PutBlock(Block{Hash: hash, Height: 5}))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.GetBlock(hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(5), got.Height)
}
