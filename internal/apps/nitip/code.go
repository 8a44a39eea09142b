package nitip

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

// CodeGenerator produces pickup codes.
type CodeGenerator func() (string, error)

// NewCodeGenerator draws each character uniformly from A-Z0-9 using src.
func NewCodeGenerator(src io.Reader) CodeGenerator {
	return func() (string, error) {
		var b strings.Builder
		b.Grow(CodeLength)
		for i := 0; i < CodeLength; i++ {
			n, err := rand.Int(src, alphabetSize)
			if err != nil {
				return "", fmt.Errorf("generate pickup code: %w", err)
			}
			b.WriteByte(codeAlphabet[n.Int64()])
		}
		return b.String(), nil
	}
}

// GenerateCode is the default generator backed by crypto/rand.
var GenerateCode = NewCodeGenerator(rand.Reader)

// NormalizeCode trims and upper-cases a code typed at the counter.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsCode reports whether s has the shape of a pickup code.
func IsCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(codeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
