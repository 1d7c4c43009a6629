// Package naming formats the human-facing display IDs tokens and slots
// carry alongside their UUIDs (spec §3 "displayId"). Grounded on
// internal/positions/tracker.go's lastSeqNum counter, generalized from an
// in-memory int64 bumped under a mutex to a sequence pulled from storage so
// the counter survives a process restart and stays unique per doctor-date
// under concurrent transactions.
package naming

import (
	"context"
	"fmt"
)

// Kind distinguishes the two display-ID series a doctor-date keeps.
type Kind string

const (
	KindToken Kind = "TOKEN"
	KindSlot  Kind = "SLOT"
)

func (k Kind) prefix() string {
	switch k {
	case KindToken:
		return "T"
	case KindSlot:
		return "S"
	default:
		return "X"
	}
}

// SequenceSource hands out the next sequence number for a (kind, doctorID,
// date) series. Implemented by internal/storage against a per-key counter
// row: pgTx.NextSequence increments it inside a transaction, while
// Postgres.NextSequence, which the cmd binaries wire in, increments it
// against the pool, outside any business transaction.
type SequenceSource interface {
	NextSequence(ctx context.Context, kind string, scopeKey string) (int64, error)
}

// Namer formats display IDs.
type Namer interface {
	Next(ctx context.Context, kind Kind, scopeKey string) (string, error)
}

// SequentialNamer formats "<prefix>-<seq padded to 3 digits>", e.g. "T-014".
// Sequences beyond 999 simply widen instead of wrapping or truncating.
type SequentialNamer struct {
	Source SequenceSource
}

func NewSequentialNamer(source SequenceSource) *SequentialNamer {
	return &SequentialNamer{Source: source}
}

func (n *SequentialNamer) Next(ctx context.Context, kind Kind, scopeKey string) (string, error) {
	seq, err := n.Source.NextSequence(ctx, string(kind), scopeKey)
	if err != nil {
		return "", fmt.Errorf("naming: next sequence: %w", err)
	}
	return fmt.Sprintf("%s-%03d", kind.prefix(), seq), nil
}
