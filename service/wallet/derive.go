package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// hardenedOffset is the first hardened child index per BIP-32/SLIP-0010.
const hardenedOffset = 0x80000000

// slip10Key is the HMAC key for the ed25519 master node per SLIP-0010.
var slip10Key = []byte("ed25519 seed")

// Keypair is a derived ed25519 keypair. The private key is secret
// material; callers own it exclusively and must call Zero when done.
type Keypair struct {
	PublicKey  solana.PublicKey
	PrivateKey solana.PrivateKey
}

// Zero overwrites the private key material.
func (k *Keypair) Zero() {
	Zero(k.PrivateKey)
	k.PrivateKey = nil
}

// Derive deterministically derives the ed25519 keypair at the given
// path. Identical inputs always yield the identical keypair, across
// processes and time. All intermediate secret buffers are zeroed before
// returning on every path.
func Derive(m *Mnemonic, path DerivationPath) (*Keypair, error) {
	seed, err := m.Seed("")
	if err != nil {
		return nil, err
	}
	defer Zero(seed)

	key, chain, err := masterNode(seed)
	if err != nil {
		return nil, err
	}
	defer Zero(key)
	defer Zero(chain)

	for _, seg := range path {
		if !seg.Hardened {
			return nil, fmt.Errorf("segment %d of %s is not hardened: ed25519 derivation requires hardened children", seg.Index, path)
		}
		childKey, childChain := childNode(key, chain, seg.Index+hardenedOffset)
		Zero(key)
		Zero(chain)
		key, chain = childKey, childChain
	}

	priv := ed25519.NewKeyFromSeed(key)
	// An ed25519.PrivateKey is seed||pubkey, which is exactly the 64-byte
	// layout solana.PrivateKey expects.
	keypair := &Keypair{
		PrivateKey: solana.PrivateKey(priv),
	}
	keypair.PublicKey = keypair.PrivateKey.PublicKey()
	return keypair, nil
}

// PublicKeyFromMnemonic derives the canonical wallet address for a
// phrase: the public key at DefaultPath.
func PublicKeyFromMnemonic(m *Mnemonic) (solana.PublicKey, error) {
	keypair, err := Derive(m, DefaultPath)
	if err != nil {
		return solana.PublicKey{}, err
	}
	defer keypair.Zero()
	return keypair.PublicKey, nil
}

// RecoveryResult is the outcome of a successful RecoverByPath: the path
// that matched and the keypair derived at it.
type RecoveryResult struct {
	Path    DerivationPath
	Keypair *Keypair
}

// RecoverByPath tries each candidate path in order and returns the
// first whose derived public key equals expected. If candidates is nil,
// RecoveryPaths is used. Absence of a match is a terminal, reported
// failure (*NoMatchingPathError); this function never falls back to
// generating a fresh key.
func RecoverByPath(m *Mnemonic, expected solana.PublicKey, candidates []DerivationPath) (*RecoveryResult, error) {
	if candidates == nil {
		candidates = RecoveryPaths
	}
	attempted := make([]DerivationPath, 0, len(candidates))
	for _, path := range candidates {
		attempted = append(attempted, path)
		keypair, err := Derive(m, path)
		if err != nil {
			return nil, fmt.Errorf("derive at %s: %w", path, err)
		}
		if keypair.PublicKey.Equals(expected) {
			return &RecoveryResult{Path: path, Keypair: keypair}, nil
		}
		keypair.Zero()
	}
	return nil, &NoMatchingPathError{Expected: expected, Attempted: attempted}
}

// masterNode computes the SLIP-0010 ed25519 master key and chain code.
func masterNode(seed []byte) (key, chain []byte, err error) {
	if len(seed) != 64 {
		return nil, nil, fmt.Errorf("seed must be 64 bytes, got %d", len(seed))
	}
	mac := hmac.New(sha512.New, slip10Key)
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:], nil
}

// childNode computes a hardened SLIP-0010 child node.
// data = 0x00 || parent key || ser32(index).
func childNode(key, chain []byte, index uint32) (childKey, childChain []byte) {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, key...)
	data = binary.BigEndian.AppendUint32(data, index)
	defer Zero(data)

	mac := hmac.New(sha512.New, chain)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}
