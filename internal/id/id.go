// Package id mints sortable, prefixed identifiers for sessions, messages,
// parts, tool calls, and questions.
//
// An identifier is "{prefix}_{token}" where the token is a lowercase ULID.
// ULIDs embed a millisecond timestamp, and the generator uses monotonic
// entropy, so IDs minted within one process sort lexicographically in
// generation order.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefix selects the identifier namespace.
type Prefix string

const (
	Session  Prefix = "ses"
	Message  Prefix = "msg"
	Part     Prefix = "prt"
	Tool     Prefix = "tol"
	Question Prefix = "qst"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// ErrInvalid is returned when an identifier does not have the
// "{prefix}_{token}" shape.
var ErrInvalid = errors.New("invalid identifier")

// New mints a fresh identifier with the given prefix.
func New(prefix Prefix) string {
	mu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	mu.Unlock()
	return fmt.Sprintf("%s_%s", prefix, strings.ToLower(u.String()))
}

// Ascending mints a time-ordered identifier. It is the same as New.
func Ascending(prefix Prefix) string { return New(prefix) }

// Descending is documented as minting reverse-ordered identifiers but is
// currently identical to Ascending; the single mode is kept until the
// ordering question is settled.
func Descending(prefix Prefix) string { return New(prefix) }

// Parse splits an identifier into its prefix and token.
func Parse(id string) (prefix, token string, err error) {
	i := strings.Index(id, "_")
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalid, id)
	}
	return id[:i], id[i+1:], nil
}

// Validate reports whether id carries the expected prefix.
func Validate(id string, expected Prefix) bool {
	prefix, _, err := Parse(id)
	if err != nil {
		return false
	}
	return prefix == string(expected)
}
