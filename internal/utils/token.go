package utils

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// TokenGenerator produces unique opaque tokens such as interview join codes.
type TokenGenerator interface {
	NewToken() string
}

// UUIDGenerator issues random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewToken() string {
	return uuid.NewString()
}

// SequenceGenerator issues predictable tokens with a fixed prefix. Tests use it
// to assert on generated codes.
type SequenceGenerator struct {
	Prefix string
	next   atomic.Uint64
}

func (g *SequenceGenerator) NewToken() string {
	return fmt.Sprintf("%s-%d", g.Prefix, g.next.Add(1))
}
