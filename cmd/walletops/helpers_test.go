package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
)

func TestApplyJQ(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		expr      string
		want      []interface{}
		expectErr bool
	}{
		{
			name:  "field selection",
			value: map[string]interface{}{"burned": 3, "halted": false},
			expr:  ".burned",
			want:  []interface{}{3},
		},
		{
			name: "filter over records",
			value: map[string]interface{}{
				"records": []map[string]interface{}{
					{"owner": "a", "status": "closed"},
					{"owner": "b", "status": "skipped"},
					{"owner": "c", "status": "closed"},
				},
			},
			expr: `[.records[] | select(.status == "closed") | .owner]`,
			want: []interface{}{[]interface{}{"a", "c"}},
		},
		{
			name:  "boolean result",
			value: map[string]interface{}{"total_recovered_lamports": 4078560},
			expr:  ".total_recovered_lamports > 0",
			want:  []interface{}{true},
		},
		{
			name:      "invalid expression",
			value:     map[string]interface{}{},
			expr:      ".[unterminated",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyJQ(tt.value, tt.expr)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got results %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyJQ failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.want))
			}
			for i := range got {
				// jq numbers decode as int or float64 depending on the
				// expression; compare formatted values.
				if gotStr, wantStr := fmt.Sprint(got[i]), fmt.Sprint(tt.want[i]); gotStr != wantStr {
					t.Errorf("result %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadOwnersFile(t *testing.T) {
	owner1 := solanago.NewWallet().PublicKey().String()
	owner2 := solanago.NewWallet().PublicKey().String()

	t.Run("parses addresses and skips comments", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "owners.txt")
		content := "# settled wallets\n" + owner1 + "\n\n  " + owner2 + "  \n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		owners, err := readOwnersFile(path)
		if err != nil {
			t.Fatalf("readOwnersFile failed: %v", err)
		}
		if len(owners) != 2 {
			t.Fatalf("got %d owners, want 2", len(owners))
		}
		if owners[0] != owner1 || owners[1] != owner2 {
			t.Errorf("got %v, want [%s %s]", owners, owner1, owner2)
		}
	})

	t.Run("rejects invalid addresses", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "owners.txt")
		if err := os.WriteFile(path, []byte(owner1+"\nnot-base58!\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		if _, err := readOwnersFile(path); err == nil {
			t.Fatal("expected error for invalid address")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := readOwnersFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}
