package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const (
	referencePrefix   = "WS-"
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceLength   = 9
)

// ReferencePattern matches booking references handed to customers.
var ReferencePattern = regexp.MustCompile(`^WS-[A-Z0-9]{9}$`)

// NewReference returns a random human-readable booking reference such as WS-7K2M9QX4B.
func NewReference() (string, error) {
	buf := make([]byte, referenceLength)
	limit := big.NewInt(int64(len(referenceAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate reference: %w", err)
		}
		buf[i] = referenceAlphabet[n.Int64()]
	}
	return referencePrefix + string(buf), nil
}
