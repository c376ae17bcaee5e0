package wallet

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSegment is one level of a hierarchical derivation path.
// SLIP-0010 ed25519 derivation only defines hardened children, so
// Hardened must be true for every segment; the flag is kept explicit so
// a malformed path is rejected rather than silently hardened.
type PathSegment struct {
	Index    uint32
	Hardened bool
}

// DerivationPath is an ordered sequence of segments below the master key.
// The empty path addresses the bare SLIP-0010 master key itself, which
// some early wallet builds used directly.
type DerivationPath []PathSegment

// DefaultPath is the canonical Solana BIP-44 path m/44'/501'/0'/0'.
var DefaultPath = DerivationPath{
	{Index: 44, Hardened: true},
	{Index: 501, Hardened: true},
	{Index: 0, Hardened: true},
	{Index: 0, Hardened: true},
}

// RecoveryPaths is the ordered list of candidate paths tried by
// RecoverByPath. The canonical path comes first, followed by the
// shortened and alternate-index variants historical app versions have
// produced, and finally the bare master key. The order is part of the
// recovery contract; do not reorder without migrating stored wallets.
var RecoveryPaths = []DerivationPath{
	DefaultPath,
	MustParsePath("m/44'/501'/0'"),
	MustParsePath("m/44'/501'/1'/0'"),
	MustParsePath("m/44'/501'/0'/1'"),
	MustParsePath("m/501'/0'/0'"),
	{}, // bare master key
}

// ParsePath parses a path string like "m/44'/501'/0'/0'".
// Both ' and h are accepted as hardened markers. "m" alone is the empty
// path (the master key).
func ParsePath(s string) (DerivationPath, error) {
	s = strings.TrimSpace(s)
	if s == "m" || s == "m/" {
		return DerivationPath{}, nil
	}
	if !strings.HasPrefix(s, "m/") {
		return nil, fmt.Errorf("derivation path %q must start with m/", s)
	}
	parts := strings.Split(s[2:], "/")
	path := make(DerivationPath, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("derivation path %q has an empty segment", s)
		}
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}
		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("derivation path %q has invalid index %q: %w", s, part, err)
		}
		if index >= hardenedOffset {
			return nil, fmt.Errorf("derivation path %q index %d out of range", s, index)
		}
		path = append(path, PathSegment{Index: uint32(index), Hardened: hardened})
	}
	return path, nil
}

// MustParsePath is like ParsePath but panics on malformed input.
// Intended for package-level path constants.
func MustParsePath(s string) DerivationPath {
	path, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return path
}

// String renders the path in the conventional m/i'/j'/... notation.
func (p DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, seg := range p {
		b.WriteString("/")
		b.WriteString(strconv.FormatUint(uint64(seg.Index), 10))
		if seg.Hardened {
			b.WriteString("'")
		}
	}
	return b.String()
}

// Equal reports whether two paths are segment-for-segment identical.
func (p DerivationPath) Equal(other DerivationPath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
