package link

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func TestNewStateToken(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		token, err := NewStateToken()
		if err != nil {
			t.Fatalf("NewStateToken() error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true

		// The token travels as a query parameter, so it must decode as
		// raw URL-safe base64 with the full entropy intact.
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			t.Fatalf("token %q is not raw URL-safe base64: %v", token, err)
		}
		if len(raw) != stateTokenBytes {
			t.Fatalf("token decodes to %d bytes, want %d", len(raw), stateTokenBytes)
		}
		if strings.ContainsAny(token, "+/=") {
			t.Fatalf("token %q contains URL-unsafe characters", token)
		}
	}
}

func TestPendingLinkExpired(t *testing.T) {
	t.Parallel()

	p := PendingLink{ExpiresAt: mustTime(t, "2026-01-02T15:00:00Z")}

	tests := []struct {
		name string
		now  string
		want bool
	}{
		{"before expiry", "2026-01-02T14:59:59Z", false},
		{"at expiry", "2026-01-02T15:00:00Z", true},
		{"after expiry", "2026-01-02T15:00:01Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Expired(mustTime(t, tt.now)); got != tt.want {
				t.Errorf("Expired(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
