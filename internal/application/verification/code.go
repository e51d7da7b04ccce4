package verification

import (
	"fmt"
	"io"
	"math/big"
	"strings"
)

const minEntropyBytes = 3

// generateCode draws enough bytes from r to cover [0, 10^length), reduces
// modulo 10^length and zero-pads. The modulo step is slightly biased
// (about 6% between low and high residues for 6 digits over 3 bytes), which
// is acceptable for short-lived throttled codes but not for key material.
func generateCode(r io.Reader, length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	buf := make([]byte, max((limit.BitLen()+7)/8, minEntropyBytes))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	n := new(big.Int).SetBytes(buf)
	n.Mod(n, limit)
	s := n.String()
	return strings.Repeat("0", length-len(s)) + s, nil
}

// isDigits reports whether s is exactly length ASCII digits.
func isDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
