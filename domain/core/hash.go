package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough for log lines
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Domain-specific hash types
type (
	InputHash  Hash
	ConfigHash Hash
)

func (h InputHash) String() string  { return Hash(h).String() }
func (h ConfigHash) String() string { return Hash(h).String() }

// ComputeInputSetHash hashes a set of named input hashes independent of map order
func ComputeInputSetHash(inputs map[string]InputHash) Hash {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var data strings.Builder
	for _, name := range names {
		data.WriteString(name)
		data.WriteByte('=')
		data.WriteString(inputs[name].String())
		data.WriteByte('\n')
	}
	return NewHash([]byte(data.String()))
}
