package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// GenesisHash is the previous-block-hash sentinel for block 1: one zero
// nibble per hex digit of a SHA-256 digest.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// HashContent returns the hex SHA-256 digest of a canonical encoding.
func HashContent(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// HashBlock derives a block hash from the fields that pin a block to its
// position in the chain: content hash, signature, previous block hash and
// block number, separated so field boundaries cannot be shifted.
func HashBlock(contentHash, signature, previousBlockHash string, blockNumber int64) string {
	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte{'|'})
	h.Write([]byte(signature))
	h.Write([]byte{'|'})
	h.Write([]byte(previousBlockHash))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(blockNumber, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
