package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   string
		want DerivationPath
	}{
		{"m", DerivationPath{}},
		{"m/44'/501'/0'/0'", DefaultPath},
		{"m/44h/501h/0h/0h", DefaultPath},
		{"m/0/1'", DerivationPath{{Index: 0, Hardened: false}, {Index: 1, Hardened: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePath(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s", got)
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, in := range []string{
		"44'/501'",
		"m//0'",
		"m/abc'",
		"m/4294967296'",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePath(in)
			assert.Error(t, err)
		})
	}
}

func TestPathString_RoundTrip(t *testing.T) {
	for _, path := range RecoveryPaths {
		reparsed, err := ParsePath(path.String())
		require.NoError(t, err)
		assert.True(t, reparsed.Equal(path))
	}
}

func TestRecoveryPaths_CanonicalFirst(t *testing.T) {
	require.NotEmpty(t, RecoveryPaths)
	assert.True(t, RecoveryPaths[0].Equal(DefaultPath))

	// The bare master key is the last resort.
	assert.Len(t, RecoveryPaths[len(RecoveryPaths)-1], 0)
}
