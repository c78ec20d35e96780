package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guardefi/landing1.2-sub002/internal/mirror"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// stubDocs records stored documents and returns sequential references.
type stubDocs struct {
	mu    sync.Mutex
	docs  []mirror.Document
	fail  int // fail this many calls before succeeding
	calls int
}

func (s *stubDocs) StoreDocument(ctx context.Context, doc mirror.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return "", errors.New("mirror unavailable")
	}
	s.docs = append(s.docs, doc)
	return doc.ID + "-ref", nil
}

func (s *stubDocs) FetchDocument(ctx context.Context, ref string) (mirror.Document, error) {
	return mirror.Document{}, errors.New("not implemented")
}

func fastMirrorer(store Store, docs mirror.DocumentStore) *Mirrorer {
	m := NewMirrorer(store, docs)
	m.retryInterval = time.Millisecond
	return m
}

func TestMirrorBlockAttachesRef(t *testing.T) {
	store := newMemStore()
	signer := testSigner(t)
	blocks := seedChain(t, store, signer, 1)

	docs := &stubDocs{}
	fastMirrorer(store, docs).MirrorBlock(context.Background(), blocks[0])

	got, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got.SecondaryRef)
	assert.Equal(t, "evt-001-ref", *got.SecondaryRef)
	require.Len(t, docs.docs, 1)
	assert.Equal(t, blocks[0].BlockHash, docs.docs[0].Hash)
	assert.Equal(t, "audit_block", docs.docs[0].Type)
}

func TestMirrorBlockRetriesTransientFailure(t *testing.T) {
	store := newMemStore()
	signer := testSigner(t)
	blocks := seedChain(t, store, signer, 1)

	docs := &stubDocs{fail: 2}
	fastMirrorer(store, docs).MirrorBlock(context.Background(), blocks[0])

	got, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, got.SecondaryRef)
	assert.Equal(t, 3, docs.calls)
}

func TestMirrorBlockGivesUpAfterRetries(t *testing.T) {
	store := newMemStore()
	signer := testSigner(t)
	blocks := seedChain(t, store, signer, 1)

	docs := &stubDocs{fail: 1000}
	m := fastMirrorer(store, docs)
	m.maxRetries = 2
	m.MirrorBlock(context.Background(), blocks[0])

	got, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got.SecondaryRef)
	assert.Equal(t, 3, docs.calls)
}

func TestMirrorBlockDisabledIsNotRetried(t *testing.T) {
	store := newMemStore()
	signer := testSigner(t)
	blocks := seedChain(t, store, signer, 1)

	fastMirrorer(store, mirror.Noop{}).MirrorBlock(context.Background(), blocks[0])

	got, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got.SecondaryRef)
}

func TestSweepMirrorsBackloggedBlocks(t *testing.T) {
	store := newMemStore()
	signer := testSigner(t)
	seedChain(t, store, signer, 3)

	// Age the blocks past the sweep grace period.
	for n := int64(1); n <= 3; n++ {
		store.mutate(n, func(b *models.Block) {
			b.CommittedAt = time.Now().UTC().Add(-5 * time.Minute)
		})
	}

	docs := &stubDocs{}
	fastMirrorer(store, docs).Sweep(context.Background())

	for n := int64(1); n <= 3; n++ {
		got, err := store.Get(context.Background(), n)
		require.NoError(t, err)
		assert.NotNil(t, got.SecondaryRef, "block %d not mirrored", n)
	}

	// A second sweep finds nothing left to mirror.
	before := docs.calls
	fastMirrorer(store, docs).Sweep(context.Background())
	assert.Equal(t, before, docs.calls)
}
