// Package wallet implements deterministic Solana key derivation from
// BIP-39 mnemonics, including recovery across the historical derivation
// paths the mobile app has shipped with.
package wallet

import (
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// Mnemonic holds a BIP-39 recovery phrase in an exclusively-owned buffer.
// Callers acquire it for the duration of a derivation and must call Zero
// when done; the phrase is never logged or persisted by this package.
type Mnemonic struct {
	buf []byte
}

// NewMnemonic validates and wraps a BIP-39 recovery phrase.
// Word count must be 12 or 24 and the checksum must verify against the
// English word list. Returns ErrInvalidMnemonic otherwise.
func NewMnemonic(phrase string) (*Mnemonic, error) {
	normalized := strings.Join(strings.Fields(phrase), " ")
	words := strings.Count(normalized, " ") + 1
	if normalized == "" || (words != 12 && words != 24) {
		return nil, ErrInvalidMnemonic
	}
	if !bip39.IsMnemonicValid(normalized) {
		return nil, ErrInvalidMnemonic
	}
	return &Mnemonic{buf: []byte(normalized)}, nil
}

// WordCount returns the number of words in the phrase (12 or 24).
func (m *Mnemonic) WordCount() int {
	return strings.Count(string(m.buf), " ") + 1
}

// Seed derives the 512-bit BIP-39 seed (PBKDF2-SHA512) for the phrase.
// The returned buffer is owned by the caller, who must zero it.
func (m *Mnemonic) Seed(passphrase string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(string(m.buf), passphrase)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	return seed, nil
}

// Zero overwrites the phrase buffer. The Mnemonic must not be used after.
func (m *Mnemonic) Zero() {
	for i := range m.buf {
		m.buf[i] = 0
	}
	m.buf = nil
}

// Zero overwrites a secret byte buffer in place.
// Used for seeds and private key material on every exit path.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
