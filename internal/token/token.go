// Package token handles token identifier parsing and validation. Fungible
// currencies, item collections and the native coin all share one
// identifier namespace.
package token

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kinds of identifiers.
const (
	KindNative = "NATIVE"
	KindIssued = "ISSUED"
)

// identifierRegex matches: {TICKER}-{6 hex chars}
// Example: WEGLD-bd4d79
var identifierRegex = regexp.MustCompile(`^([A-Z0-9]{3,10})-([0-9a-f]{6})$`)

// nativeRegex matches the bare ticker of the native coin.
var nativeRegex = regexp.MustCompile(`^[A-Z]{3,10}$`)

var (
	ErrInvalidIdentifier = errors.New("token: invalid identifier format")
	ErrNotNative         = errors.New("token: identifier is not the native coin")
)

// Identifier is a parsed token identifier.
type Identifier struct {
	Raw    string `json:"raw"`
	Ticker string `json:"ticker"`
	Random string `json:"random,omitempty"`
	Kind   string `json:"kind"`
}

// Parse parses and validates an identifier. native is the bare ticker of
// the chain's native coin, which carries no random suffix.
func Parse(identifier, native string) (*Identifier, error) {
	if native != "" && identifier == native {
		if !nativeRegex.MatchString(identifier) {
			return nil, fmt.Errorf("%w: %s", ErrNotNative, identifier)
		}
		return &Identifier{Raw: identifier, Ticker: identifier, Kind: KindNative}, nil
	}

	matches := identifierRegex.FindStringSubmatch(identifier)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {TICKER}-{hex6})", ErrInvalidIdentifier, identifier)
	}
	return &Identifier{
		Raw:    identifier,
		Ticker: matches[1],
		Random: matches[2],
		Kind:   KindIssued,
	}, nil
}

// Valid reports whether identifier parses.
func Valid(identifier, native string) bool {
	_, err := Parse(identifier, native)
	return err == nil
}

// Normalize trims whitespace around an identifier; the random suffix is
// case-sensitive so nothing else is touched.
func Normalize(identifier string) string {
	return strings.TrimSpace(identifier)
}
