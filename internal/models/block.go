package models

import "time"

// Block is one committed, immutable ledger entry. Block numbers start at 1
// and are gap-free; PreviousBlockHash of block 1 is the genesis sentinel.
type Block struct {
	BlockNumber       int64      `json:"block_number"`
	Event             AuditEvent `json:"event"`
	ContentHash       string     `json:"content_hash"`
	Signature         string     `json:"signature"`
	PreviousBlockHash string     `json:"previous_block_hash"`
	BlockHash         string     `json:"block_hash"`
	SecondaryRef      *string    `json:"secondary_ref,omitempty"`
	CommittedAt       time.Time  `json:"committed_at"`
}

// ChainMetadata is the singleton chain-tip row. It is advanced inside the
// same transaction as each block insert and read-locked by the allocator.
type ChainMetadata struct {
	LastBlockNumber int64      `json:"last_block_number"`
	LastBlockHash   string     `json:"last_block_hash"`
	TotalEvents     int64      `json:"total_events"`
	LastVerifiedAt  *time.Time `json:"last_verified_at,omitempty"`
	IntegrityOK     bool       `json:"integrity_ok"`
}

// VerificationReport is the itemized result of replaying a block range.
// The chain is verified only when every finding category is empty.
type VerificationReport struct {
	StartBlock        int64     `json:"start_block"`
	EndBlock          int64     `json:"end_block"`
	VerifiedBlocks    int       `json:"verified_blocks"`
	MissingBlocks     []int64   `json:"missing_blocks"`
	InvalidSignatures []int64   `json:"invalid_signatures"`
	BrokenLinks       []int64   `json:"broken_links"`
	ContentMismatches []int64   `json:"content_mismatches"`
	Verified          bool      `json:"verified"`
	VerifiedAt        time.Time `json:"verified_at"`
}
