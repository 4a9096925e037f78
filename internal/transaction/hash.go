package transaction

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// NewTxHash returns a unique 32-byte identifier for a recorded operation.
func NewTxHash() string {
	id := uuid.New()
	return crypto.Keccak256Hash(id[:]).Hex()
}
