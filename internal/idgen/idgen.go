// Package idgen generates short identifiers for changelog entries.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// ChangePrefix marks changelog entry ids.
const ChangePrefix = "chg-"

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	size     = 12
)

// NewChangeID returns a fresh changelog entry id.
func NewChangeID() (string, error) {
	return New(ChangePrefix)
}

// New returns prefix followed by a random lowercase alphanumeric suffix.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
