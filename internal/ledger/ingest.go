package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Guardefi/landing1.2-sub002/internal/metrics"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

const commitMaxRetries = 5

type submission struct {
	ctx   context.Context
	event models.AuditEvent
	done  chan result
}

type result struct {
	block models.Block
	err   error
}

// Pipeline is the ingestion queue plus its single consumer. Submissions are
// committed strictly in enqueue order, which is what makes block order
// meaningful relative to submission order. Everything downstream of the
// commit (mirroring, anomaly counters) is off the caller's path.
type Pipeline struct {
	store    Store
	signer   *Signer
	mirrorer *Mirrorer
	detector *AnomalyDetector

	queue chan submission

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPipeline builds a pipeline with the given queue bound. Run must be
// called before Submit will make progress.
func NewPipeline(store Store, signer *Signer, mirrorer *Mirrorer, detector *AnomalyDetector, queueSize int) *Pipeline {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Pipeline{
		store:    store,
		signer:   signer,
		mirrorer: mirrorer,
		detector: detector,
		queue:    make(chan submission, queueSize),
	}
}

// Run starts the consumer goroutine. It drains the queue in FIFO order and
// returns after Close once every accepted submission is resolved.
func (p *Pipeline) Run() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for sub := range p.queue {
			metrics.SetIngestQueueDepth(len(p.queue))
			// Dropped if the caller gave up before we dequeued it. Once
			// processing starts the commit is no longer cancellable.
			if sub.ctx.Err() != nil {
				sub.done <- result{err: sub.ctx.Err()}
				continue
			}
			sub.done <- p.process(sub.event)
		}
	}()
}

// Submit validates and enqueues an event, then waits for the consumer's
// definitive answer: the committed block, or an error from the taxonomy
// (ErrInvalidEvent, ErrQueueFull, ErrNotCommitted). There is no "maybe
// committed" outcome on this path.
func (p *Pipeline) Submit(ctx context.Context, e models.AuditEvent) (models.Block, error) {
	if fields := e.Validate(); fields != nil {
		return models.Block{}, fmt.Errorf("%w: %v", ErrInvalidEvent, fields)
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	e.Normalize(time.Now())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return models.Block{}, ErrClosed
	}
	sub := submission{ctx: ctx, event: e, done: make(chan result, 1)}
	select {
	case p.queue <- sub:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		return models.Block{}, ErrQueueFull
	}
	metrics.SetIngestQueueDepth(len(p.queue))

	res := <-sub.done
	return res.block, res.err
}

// process hashes, signs and commits one event, then mirrors it and feeds the
// anomaly counters. Commit failures are retried with bounded backoff before
// the event is escalated as not committed.
func (p *Pipeline) process(e models.AuditEvent) result {
	if bump := p.detector.RiskAdjustment(e.Actor); bump > 0 {
		e.RiskScore += bump
		if e.RiskScore > 100 {
			e.RiskScore = 100
		}
	}

	encoded, err := CanonicalEncode(e)
	if err != nil {
		return result{err: fmt.Errorf("%w: %v", ErrInvalidEvent, err)}
	}
	contentHash := HashContent(encoded)
	signature, err := p.signer.Sign(encoded)
	if err != nil {
		slog.Error("sign event", "event_id", e.EventID, "error", err)
		return result{err: fmt.Errorf("%w: %v", ErrNotCommitted, err)}
	}

	var block models.Block
	commit := func() error {
		var commitErr error
		block, commitErr = p.store.Commit(context.Background(), e, contentHash, signature)
		return commitErr
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), commitMaxRetries)
	if err := backoff.Retry(commit, policy); err != nil {
		metrics.IncCommitFailures()
		slog.Error("commit exhausted retries, event not committed",
			"event_id", e.EventID, "error", err)
		return result{err: fmt.Errorf("%w: %v", ErrNotCommitted, err)}
	}

	metrics.IncBlocksCommitted()

	p.wg.Add(1)
	go func(b models.Block) {
		defer p.wg.Done()
		p.mirrorer.MirrorBlock(context.Background(), b)
	}(block)

	p.detector.Record(block.Event)
	return result{block: block}
}

// Close stops accepting submissions, drains the queue and waits for the
// consumer and in-flight mirror writes to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
