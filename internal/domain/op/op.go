package op

import "strings"

// Code is the client operation carried by a search.
type Code string

// Operation codes.
const (
	Get Code = "GET"
	Put Code = "PUT"
)

// Parse normalizes a textual op code. The second return is false for unknown codes.
func Parse(s string) (Code, bool) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.IsValid()
}

// IsValid checks if the code is one of the supported values.
func (c Code) IsValid() bool {
	return c == Get || c == Put
}
