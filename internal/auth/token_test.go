package auth

import "testing"

func TestNewSessionTokenIsUniqueAndHashed(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		raw, hash, err := NewSessionToken()
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		if len(raw) != 64 {
			t.Fatalf("expected 64 hex chars, got %d", len(raw))
		}
		if hash == raw || hash != HashToken(raw) {
			t.Fatalf("hash must be derived from, and differ from, the raw token")
		}
		if seen[raw] {
			t.Fatalf("duplicate token generated")
		}
		seen[raw] = true
	}
}
