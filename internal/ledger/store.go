package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// Sentinel errors shared across the ledger core and its storage backend.
var (
	// ErrBlockNotFound is returned when a block number or event id has no
	// committed block.
	ErrBlockNotFound = errors.New("block not found")
	// ErrQueueFull is a retryable rejection: the ingestion queue is at its
	// configured bound. Audit events are never silently dropped instead.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrClosed is returned for submissions after shutdown began.
	ErrClosed = errors.New("ledger pipeline closed")
	// ErrInvalidEvent marks validation failures rejected before enqueue.
	ErrInvalidEvent = errors.New("invalid audit event")
	// ErrNotCommitted is the definitive failure ack after the consumer
	// exhausted its commit retries. The event did not reach the chain.
	ErrNotCommitted = errors.New("event not committed")
)

// Store is the durable write side of the ledger: the chain allocator plus
// write-once block storage. Commit is idempotent for a given event id.
type Store interface {
	BlockReader
	// Commit allocates the next block number under the chain-tip lock,
	// derives the block hash, inserts the block and advances the chain
	// metadata in one transaction. Resubmitting an already committed event
	// id returns the existing block.
	Commit(ctx context.Context, e models.AuditEvent, contentHash, signature string) (models.Block, error)
	// AttachSecondaryRef records the external ledger reference for a block
	// that has none yet. It is idempotent and never alters audited content.
	AttachSecondaryRef(ctx context.Context, blockNumber int64, ref string) error
	// SetVerification updates the ledger-health fields of the chain
	// metadata after a verification run.
	SetVerification(ctx context.Context, at time.Time, ok bool) error
	// ListUnmirrored returns committed blocks without a secondary-ledger
	// reference, oldest first, for the outbox sweep.
	ListUnmirrored(ctx context.Context, olderThan time.Duration, limit int) ([]models.Block, error)
}

// BlockReader is the read-only view used by verification and queries.
type BlockReader interface {
	Get(ctx context.Context, blockNumber int64) (models.Block, error)
	GetByEventID(ctx context.Context, eventID string) (models.Block, error)
	Metadata(ctx context.Context) (models.ChainMetadata, error)
}
