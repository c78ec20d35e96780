package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Guardefi/landing1.2-sub002/internal/metrics"
	"github.com/Guardefi/landing1.2-sub002/internal/mirror"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

const (
	mirrorMaxRetries  = 4
	mirrorSweepLimit  = 100
	mirrorSweepGrace  = time.Minute
	mirrorCallTimeout = 30 * time.Second
)

// Mirrorer copies committed blocks to the secondary ledger after the primary
// commit. It runs off the critical path: a failed mirror leaves the block
// without a secondary reference and the sweep retries it later.
type Mirrorer struct {
	store Store
	docs  mirror.DocumentStore

	maxRetries    uint64
	retryInterval time.Duration
}

// NewMirrorer builds a mirrorer over store writing to docs.
func NewMirrorer(store Store, docs mirror.DocumentStore) *Mirrorer {
	return &Mirrorer{
		store:         store,
		docs:          docs,
		maxRetries:    mirrorMaxRetries,
		retryInterval: backoff.DefaultInitialInterval,
	}
}

// MirrorBlock writes one block to the secondary ledger with bounded backoff
// and attaches the returned reference. All failures degrade to a warning.
func (m *Mirrorer) MirrorBlock(ctx context.Context, block models.Block) {
	ctx, cancel := context.WithTimeout(ctx, mirrorCallTimeout)
	defer cancel()

	doc := mirror.Document{
		ID:   block.Event.EventID,
		Hash: block.BlockHash,
		Type: "audit_block",
		Metadata: map[string]string{
			"block_number": strconv.FormatInt(block.BlockNumber, 10),
			"content_hash": block.ContentHash,
			"event_type":   block.Event.EventType,
		},
	}

	var ref string
	op := func() error {
		var err error
		ref, err = m.docs.StoreDocument(ctx, doc)
		if errors.Is(err, mirror.ErrDisabled) {
			return backoff.Permanent(err)
		}
		return err
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = m.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, m.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, mirror.ErrDisabled) {
			return
		}
		metrics.IncMirrorFailures()
		slog.Warn("secondary ledger mirror failed, running degraded",
			"block_number", block.BlockNumber, "error", err)
		return
	}

	if err := m.store.AttachSecondaryRef(ctx, block.BlockNumber, ref); err != nil {
		metrics.IncMirrorFailures()
		slog.Warn("attach secondary reference failed",
			"block_number", block.BlockNumber, "ref", ref, "error", err)
	}
}

// Sweep re-mirrors committed blocks that still have no secondary reference.
// The grace period keeps it from racing the in-flight post-commit mirror.
func (m *Mirrorer) Sweep(ctx context.Context) {
	blocks, err := m.store.ListUnmirrored(ctx, mirrorSweepGrace, mirrorSweepLimit)
	if err != nil {
		slog.Warn("mirror sweep: list unmirrored blocks", "error", err)
		return
	}
	for _, block := range blocks {
		if ctx.Err() != nil {
			return
		}
		m.MirrorBlock(ctx, block)
	}
}
