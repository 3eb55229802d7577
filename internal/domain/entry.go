package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisHash is the previous hash of the entry at sequence 0.
const GenesisHash = "GENESIS"

// LedgerEntry is one immutable, hash-chained record of an accepted event.
type LedgerEntry struct {
	RecordedAt   time.Time
	Event        PaymentEvent
	PreviousHash string
	Hash         string
	Split        SplitResult
	Sequence     int64
}

// canonicalEvent fixes field order for hashing. encoding/json writes struct
// fields in declaration order and map keys sorted, so the output is stable.
type canonicalEvent struct {
	EventID     string            `json:"event_id"`
	Kind        EventKind         `json:"kind"`
	Stream      Stream            `json:"stream"`
	GrossAmount int64             `json:"gross_amount"`
	Provider    Provider          `json:"provider"`
	Timestamp   string            `json:"timestamp"`
	Metadata    map[string]string `json:"metadata"`
}

type canonicalEntry struct {
	Sequence     int64          `json:"sequence"`
	Event        canonicalEvent `json:"event"`
	Split        SplitResult    `json:"split"`
	PreviousHash string         `json:"previous_hash"`
}

// CanonicalBytes returns the deterministic encoding the hash is computed
// over. RecordedAt and Hash are excluded.
func CanonicalBytes(sequence int64, event *PaymentEvent, split SplitResult, previousHash string) ([]byte, error) {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	doc := canonicalEntry{
		Sequence: sequence,
		Event: canonicalEvent{
			EventID:     event.EventID,
			Kind:        event.Kind,
			Stream:      event.Stream,
			GrossAmount: event.GrossAmount,
			Provider:    event.Provider,
			Timestamp:   NormalizeTime(event.Timestamp).Format(time.RFC3339Nano),
			Metadata:    metadata,
		},
		Split:        split,
		PreviousHash: previousHash,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry %d: %w", sequence, err)
	}
	return data, nil
}

// ComputeHash returns the lowercase hex SHA-256 of the canonical encoding.
func ComputeHash(sequence int64, event *PaymentEvent, split SplitResult, previousHash string) (string, error) {
	data, err := CanonicalBytes(sequence, event, split, previousHash)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewLedgerEntry builds the entry that follows previousHash at sequence and
// seals it with its hash.
func NewLedgerEntry(sequence int64, event *PaymentEvent, split SplitResult, previousHash string, recordedAt time.Time) (*LedgerEntry, error) {
	normalized := event.Normalized()

	hash, err := ComputeHash(sequence, normalized, split, previousHash)
	if err != nil {
		return nil, err
	}

	return &LedgerEntry{
		Sequence:     sequence,
		Event:        *normalized,
		Split:        split,
		PreviousHash: previousHash,
		Hash:         hash,
		RecordedAt:   NormalizeTime(recordedAt),
	}, nil
}

// RecomputeHash hashes the entry's stored content.
func (e *LedgerEntry) RecomputeHash() (string, error) {
	return ComputeHash(e.Sequence, &e.Event, e.Split, e.PreviousHash)
}

// ExpectedPreviousHash returns what entry n must carry as its previous hash
// given the hash of entry n-1. prior is ignored at sequence 0.
func ExpectedPreviousHash(sequence int64, prior string) string {
	if sequence == 0 {
		return GenesisHash
	}
	return prior
}
