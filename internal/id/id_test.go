package id

import (
	"sort"
	"strings"
	"testing"
)

func TestNewFormat(t *testing.T) {
	got := New(Session)
	if !strings.HasPrefix(got, "ses_") {
		t.Fatalf("expected ses_ prefix, got %q", got)
	}
	if got != strings.ToLower(got) {
		t.Fatalf("expected lowercase token, got %q", got)
	}
	// prefix + "_" + 26-char ULID
	if len(got) != 3+1+26 {
		t.Fatalf("unexpected length %d for %q", len(got), got)
	}
}

func TestMonotonicity(t *testing.T) {
	const n = 500
	ids := make([]string, n)
	for i := range ids {
		ids[i] = New(Message)
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("ids minted in sequence are not lexicographically sorted")
	}
	seen := make(map[string]struct{}, n)
	for _, v := range ids {
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate id %q", v)
		}
		seen[v] = struct{}{}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		prefix  string
		token   string
		wantErr bool
	}{
		{"ses_01hv3d2e8qkw9r7t5y1m4n6p8s", "ses", "01hv3d2e8qkw9r7t5y1m4n6p8s", false},
		{"noseparator", "", "", true},
		{"_token", "", "", true},
		{"ses_", "", "", true},
	}
	for _, tt := range tests {
		prefix, token, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if prefix != tt.prefix || token != tt.token {
			t.Errorf("Parse(%q) = (%q, %q), want (%q, %q)", tt.in, prefix, token, tt.prefix, tt.token)
		}
	}
}

func TestValidate(t *testing.T) {
	msgID := New(Message)
	if !Validate(msgID, Message) {
		t.Errorf("Validate(%q, Message) = false", msgID)
	}
	if Validate(msgID, Session) {
		t.Errorf("Validate(%q, Session) = true", msgID)
	}
	if Validate("garbage", Session) {
		t.Error("Validate accepted malformed id")
	}
}
