// Package keygen produces the opaque, human-typable key identifiers handed
// out to end users. Identifiers look like "KG-7F3A-X91B-QQ4D": a fixed
// prefix followed by three groups of four characters from [A-Z0-9].
//
// The generator makes no uniqueness promise. With 36^12 possible suffixes a
// collision is negligible but not impossible, so the caller is expected to
// re-roll when an insert reports a duplicate.
package keygen

import (
	"crypto/rand"
	"strings"
)

const (
	// DefaultPrefix is the literal prefix used when none is configured.
	DefaultPrefix = "KG"

	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	groupCount = 3
	groupLen   = 4
)

// Generator creates key identifiers with a fixed prefix and grouping pattern.
// It is safe for concurrent use.
type Generator struct {
	prefix string
}

// New returns a Generator using the given prefix, or DefaultPrefix if empty.
func New(prefix string) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{prefix: prefix}
}

// Prefix returns the configured identifier prefix.
func (g *Generator) Prefix() string {
	return g.prefix
}

// Generate returns a fresh identifier, e.g. "KG-7F3A-X91B-QQ4D".
func (g *Generator) Generate() string {
	var sb strings.Builder
	sb.Grow(len(g.prefix) + groupCount*(groupLen+1))
	sb.WriteString(g.prefix)
	for i := 0; i < groupCount; i++ {
		sb.WriteByte('-')
		for j := 0; j < groupLen; j++ {
			sb.WriteByte(alphabet[randIndex()])
		}
	}
	return sb.String()
}

// randIndex draws a uniform index into the alphabet. Bytes >= 252 are
// rejected so the modulo does not skew toward the low characters
// (252 is the largest multiple of 36 below 256).
func randIndex() int {
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			// crypto/rand never fails on supported platforms; if it does,
			// the process has far bigger problems than key issuance.
			panic("keygen: rand.Read: " + err.Error())
		}
		if b[0] < 252 {
			return int(b[0] % 36)
		}
	}
}
