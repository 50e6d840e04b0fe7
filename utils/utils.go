package utils

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// NewID returns a hex encoded identifier derived from a UUIDv7 subtracted from 2^128, so
// identifiers created later sort first.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	reversed := new(big.Int).Sub(limit, new(big.Int).SetBytes(id[:]))
	return hex.EncodeToString(reversed.FillBytes(make([]byte, 16))), nil
}
