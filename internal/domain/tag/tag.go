package tag

import (
	"strings"

	"github.com/google/uuid"
)

// Tag identifies one logical search across every branch and hop.
type Tag string

// New creates a tag from the originating address and a random discriminator.
func New(origin string) Tag {
	return Tag(origin + "-" + uuid.NewString())
}

// Origin returns the address the search was started from.
func (t Tag) Origin() string {
	s := string(t)
	// uuid.NewString is 36 chars; the separator precedes it.
	if len(s) < 37 || s[len(s)-37] != '-' {
		origin, _, _ := strings.Cut(s, "-")
		return origin
	}
	return s[:len(s)-37]
}

// String returns the tag as text.
func (t Tag) String() string { return string(t) }

// IsZero reports whether the tag is empty.
func (t Tag) IsZero() bool { return t == "" }
