package ledger

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// memStore is an in-memory Store for exercising the ledger core without a
// database. Commit mimics the allocator: sequential numbers, chained hashes,
// idempotency on event id.
type memStore struct {
	mu      sync.Mutex
	blocks  map[int64]models.Block
	byEvent map[string]int64
	meta    models.ChainMetadata

	// When set, Commit signals commitEntered and then blocks on
	// commitRelease, so tests can hold the consumer mid-commit.
	commitEntered chan struct{}
	commitRelease chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		blocks:  make(map[int64]models.Block),
		byEvent: make(map[string]int64),
		meta:    models.ChainMetadata{LastBlockHash: GenesisHash},
	}
}

func (s *memStore) Commit(ctx context.Context, e models.AuditEvent, contentHash, signature string) (models.Block, error) {
	if s.commitEntered != nil {
		s.commitEntered <- struct{}{}
		<-s.commitRelease
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byEvent[e.EventID]; ok {
		return s.blocks[n], nil
	}
	number := s.meta.LastBlockNumber + 1
	block := models.Block{
		BlockNumber:       number,
		Event:             e,
		ContentHash:       contentHash,
		Signature:         signature,
		PreviousBlockHash: s.meta.LastBlockHash,
		BlockHash:         HashBlock(contentHash, signature, s.meta.LastBlockHash, number),
		CommittedAt:       time.Now().UTC(),
	}
	s.blocks[number] = block
	s.byEvent[e.EventID] = number
	s.meta.LastBlockNumber = number
	s.meta.LastBlockHash = block.BlockHash
	s.meta.TotalEvents++
	return block, nil
}

func (s *memStore) Get(ctx context.Context, blockNumber int64) (models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[blockNumber]
	if !ok {
		return models.Block{}, ErrBlockNotFound
	}
	return block, nil
}

func (s *memStore) GetByEventID(ctx context.Context, eventID string) (models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byEvent[eventID]
	if !ok {
		return models.Block{}, ErrBlockNotFound
	}
	return s.blocks[n], nil
}

func (s *memStore) Metadata(ctx context.Context) (models.ChainMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta, nil
}

func (s *memStore) AttachSecondaryRef(ctx context.Context, blockNumber int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[blockNumber]
	if !ok {
		return ErrBlockNotFound
	}
	if block.SecondaryRef == nil {
		block.SecondaryRef = &ref
		s.blocks[blockNumber] = block
	}
	return nil
}

func (s *memStore) SetVerification(ctx context.Context, at time.Time, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := at
	s.meta.LastVerifiedAt = &t
	s.meta.IntegrityOK = ok
	return nil
}

func (s *memStore) ListUnmirrored(ctx context.Context, olderThan time.Duration, limit int) ([]models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var numbers []int64
	for n, block := range s.blocks {
		if block.SecondaryRef == nil && block.CommittedAt.Before(cutoff) {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	if limit > 0 && len(numbers) > limit {
		numbers = numbers[:limit]
	}
	blocks := make([]models.Block, 0, len(numbers))
	for _, n := range numbers {
		blocks = append(blocks, s.blocks[n])
	}
	return blocks, nil
}

// mutate rewrites a stored block in place, which is exactly the kind of
// tampering the verifier exists to catch.
func (s *memStore) mutate(blockNumber int64, fn func(*models.Block)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block := s.blocks[blockNumber]
	fn(&block)
	s.blocks[blockNumber] = block
}

func (s *memStore) remove(blockNumber int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, blockNumber)
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// testSigner shares one RSA key across the package; keygen is too slow to
// repeat per test.
func testSigner(t *testing.T) *Signer {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKeyErr != nil {
		t.Fatalf("generate test key: %v", testKeyErr)
	}
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func sampleEvent(i int) models.AuditEvent {
	return models.AuditEvent{
		EventID:   fmt.Sprintf("evt-%03d", i),
		Timestamp: time.Date(2025, 6, 1, 12, 0, i, 0, time.UTC),
		EventType: "key_accessed",
		Actor:     "svc-backup",
		OrgID:     "org-1",
		Action:    "read",
		Success:   true,
	}
}

// seedChain commits n well-formed events straight through the store.
func seedChain(t *testing.T, store *memStore, signer *Signer, n int) []models.Block {
	t.Helper()
	blocks := make([]models.Block, 0, n)
	for i := 1; i <= n; i++ {
		e := sampleEvent(i)
		encoded, err := CanonicalEncode(e)
		if err != nil {
			t.Fatalf("CanonicalEncode: %v", err)
		}
		sig, err := signer.Sign(encoded)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		block, err := store.Commit(context.Background(), e, HashContent(encoded), sig)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}
