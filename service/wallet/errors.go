package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidMnemonic indicates a phrase that failed word-list or
// checksum validation. It never carries the phrase itself.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NoMatchingPathError is returned by RecoverByPath when none of the
// candidate paths derives the expected public key. It enumerates every
// path attempted so the failure is diagnosable without retrying.
type NoMatchingPathError struct {
	Expected  solana.PublicKey
	Attempted []DerivationPath
}

func (e *NoMatchingPathError) Error() string {
	paths := make([]string, len(e.Attempted))
	for i, p := range e.Attempted {
		paths[i] = p.String()
	}
	return fmt.Sprintf("no derivation path yields %s (attempted %s)",
		e.Expected, strings.Join(paths, ", "))
}
