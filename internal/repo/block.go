package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Guardefi/landing1.2-sub002/internal/ledger"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

const blockColumns = `block_number, event_id, event_time, event_type, actor, org_id,
		resource_type, resource_id, action, COALESCE(source_addr,''), COALESCE(client_agent,''),
		details, success, risk_score, content_hash, signature, previous_block_hash,
		block_hash, secondary_ref, committed_at`

// BlockRepo is the primary ledger store. The block table is write-once at
// the schema level (see migration 0001); the only update this repo performs
// is attaching a secondary-ledger reference, which the WORM trigger exempts.
type BlockRepo struct {
	DB *sql.DB
}

// NewBlockRepo returns a new BlockRepo.
func NewBlockRepo(db *sql.DB) *BlockRepo {
	return &BlockRepo{DB: db}
}

// Commit is the chain allocator: one transaction that row-locks the chain
// tip, allocates the next block number, derives the block hash, inserts the
// block and advances the metadata. Any failure before the commit rolls the
// whole unit back. Resubmitting a committed event id returns its block.
func (r *BlockRepo) Commit(ctx context.Context, e models.AuditEvent, contentHash, signature string) (models.Block, error) {
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return models.Block{}, fmt.Errorf("marshal details: %w", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Block{}, fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback()

	var lastNumber int64
	var lastHash string
	err = tx.QueryRowContext(ctx,
		`SELECT last_block_number, last_block_hash FROM chain_metadata WHERE id = 1 FOR UPDATE`,
	).Scan(&lastNumber, &lastHash)
	if err != nil {
		return models.Block{}, fmt.Errorf("lock chain tip: %w", err)
	}

	blockNumber := lastNumber + 1
	blockHash := ledger.HashBlock(contentHash, signature, lastHash, blockNumber)

	var committedAt time.Time
	err = tx.QueryRowContext(ctx,
		`INSERT INTO ledger_blocks (
			block_number, event_id, event_time, event_type, actor, org_id,
			resource_type, resource_id, action, source_addr, client_agent,
			details, success, risk_score, content_hash, signature,
			previous_block_hash, block_hash
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 RETURNING committed_at`,
		blockNumber, e.EventID, e.Timestamp, e.EventType, e.Actor, e.OrgID,
		e.ResourceType, e.ResourceID, e.Action, e.SourceAddr, e.ClientAgent,
		detailsJSON, e.Success, e.RiskScore, contentHash, signature,
		lastHash, blockHash,
	).Scan(&committedAt)
	if err != nil {
		// Duplicate event id means the event is already on the chain:
		// report the existing block instead of erroring.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			tx.Rollback()
			return r.GetByEventID(ctx, e.EventID)
		}
		return models.Block{}, fmt.Errorf("insert block %d: %w", blockNumber, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE chain_metadata
		 SET last_block_number = $1, last_block_hash = $2, total_events = total_events + 1
		 WHERE id = 1`,
		blockNumber, blockHash,
	)
	if err != nil {
		return models.Block{}, fmt.Errorf("advance chain tip: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return models.Block{}, fmt.Errorf("advance chain tip: %d rows affected", n)
	}

	if err := tx.Commit(); err != nil {
		return models.Block{}, fmt.Errorf("commit block %d: %w", blockNumber, err)
	}

	return models.Block{
		BlockNumber:       blockNumber,
		Event:             e,
		ContentHash:       contentHash,
		Signature:         signature,
		PreviousBlockHash: lastHash,
		BlockHash:         blockHash,
		CommittedAt:       committedAt,
	}, nil
}

// Get returns the block with the given number.
func (r *BlockRepo) Get(ctx context.Context, blockNumber int64) (models.Block, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM ledger_blocks WHERE block_number = $1`,
		blockNumber,
	)
	return scanBlock(row)
}

// GetByEventID returns the block committed for the given event id.
func (r *BlockRepo) GetByEventID(ctx context.Context, eventID string) (models.Block, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM ledger_blocks WHERE event_id = $1`,
		eventID,
	)
	return scanBlock(row)
}

// BlockFilter narrows List results. Zero values mean "no constraint".
type BlockFilter struct {
	Actor        string
	OrgID        string
	EventType    string
	ResourceType string
	From         *time.Time
	To           *time.Time
	// Ascending orders by block number with no gaps hidden; default is
	// most recent first.
	Ascending bool
	Limit     int
	Offset    int
}

// List returns filtered blocks plus the total match count for pagination.
func (r *BlockRepo) List(ctx context.Context, f BlockFilter) ([]models.Block, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_blocks`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blocks: %w", err)
	}

	order := " ORDER BY block_number DESC"
	if f.Ascending {
		order = " ORDER BY block_number ASC"
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + blockColumns + ` FROM ledger_blocks` + where + order +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, 0, err
		}
		blocks = append(blocks, b)
	}
	return blocks, total, rows.Err()
}

func buildWhere(f BlockFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Actor != "" {
		add("actor = $%d", f.Actor)
	}
	if f.OrgID != "" {
		add("org_id = $%d", f.OrgID)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.From != nil {
		add("event_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("event_time <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Metadata returns the singleton chain-tip row.
func (r *BlockRepo) Metadata(ctx context.Context) (models.ChainMetadata, error) {
	var m models.ChainMetadata
	var verifiedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT last_block_number, last_block_hash, total_events, last_verified_at, integrity_ok
		 FROM chain_metadata WHERE id = 1`,
	).Scan(&m.LastBlockNumber, &m.LastBlockHash, &m.TotalEvents, &verifiedAt, &m.IntegrityOK)
	if err != nil {
		return models.ChainMetadata{}, fmt.Errorf("chain metadata: %w", err)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		m.LastVerifiedAt = &t
	}
	return m, nil
}

// SetVerification records the outcome of a verification run. This touches
// only ledger-health metadata, never block content.
func (r *BlockRepo) SetVerification(ctx context.Context, at time.Time, ok bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE chain_metadata SET last_verified_at = $1, integrity_ok = $2 WHERE id = 1`,
		at, ok,
	)
	return err
}

// AttachSecondaryRef sets the secondary-ledger reference on a block that has
// none. The WORM trigger permits exactly this transition; re-attaching is a
// no-op rather than an error.
func (r *BlockRepo) AttachSecondaryRef(ctx context.Context, blockNumber int64, ref string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE ledger_blocks SET secondary_ref = $1
		 WHERE block_number = $2 AND secondary_ref IS NULL`,
		ref, blockNumber,
	)
	return err
}

// ListUnmirrored returns blocks without a secondary reference committed more
// than olderThan ago, oldest first.
func (r *BlockRepo) ListUnmirrored(ctx context.Context, olderThan time.Duration, limit int) ([]models.Block, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM ledger_blocks
		 WHERE secondary_ref IS NULL AND committed_at < $1
		 ORDER BY block_number ASC LIMIT $2`,
		time.Now().UTC().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unmirrored: %w", err)
	}
	defer rows.Close()

	var blocks []models.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBlock(row rowScanner) (models.Block, error) {
	var b models.Block
	var detailsJSON []byte
	var secondaryRef sql.NullString
	err := row.Scan(
		&b.BlockNumber, &b.Event.EventID, &b.Event.Timestamp, &b.Event.EventType,
		&b.Event.Actor, &b.Event.OrgID, &b.Event.ResourceType, &b.Event.ResourceID,
		&b.Event.Action, &b.Event.SourceAddr, &b.Event.ClientAgent,
		&detailsJSON, &b.Event.Success, &b.Event.RiskScore,
		&b.ContentHash, &b.Signature, &b.PreviousBlockHash, &b.BlockHash,
		&secondaryRef, &b.CommittedAt,
	)
	if err == sql.ErrNoRows {
		return models.Block{}, ledger.ErrBlockNotFound
	}
	if err != nil {
		return models.Block{}, fmt.Errorf("scan block: %w", err)
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &b.Event.Details); err != nil {
			return models.Block{}, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	if secondaryRef.Valid {
		b.SecondaryRef = &secondaryRef.String
	}
	b.Event.Timestamp = b.Event.Timestamp.UTC()
	return b, nil
}
