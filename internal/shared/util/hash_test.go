package util

import (
	"strings"
	"testing"
)

func TestHashKey(t *testing.T) {
	id := "subject-12345"
	got := HashKey(id)
	if got != HashKey(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "collapses newlines", in: "upstream\nerror:\t bad  gateway", limit: 100, want: "upstream error: bad gateway"},
		{name: "truncates", in: "abcdefghij", limit: 4, want: "abcd"},
		{name: "no limit", in: "keep all", limit: 0, want: "keep all"},
		{name: "rune boundary", in: "ééé", limit: 3, want: "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeMessage(tt.in, tt.limit); got != tt.want {
				t.Fatalf("SanitizeMessage(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", DefaultMessageLimit+50)
	if got := SanitizeMessage(long, DefaultMessageLimit); len(got) != DefaultMessageLimit {
		t.Fatalf("expected %d bytes, got %d", DefaultMessageLimit, len(got))
	}
}

func TestETagQuotedAndContentBound(t *testing.T) {
	a := ETag("## Stakes\n- Grit")
	if !strings.HasPrefix(a, `"`) || !strings.HasSuffix(a, `"`) || len(a) != 34 {
		t.Fatalf("unexpected etag %s", a)
	}
	if a == ETag("## Stakes\n- Curiosity") {
		t.Fatalf("different content produced the same etag")
	}
}
