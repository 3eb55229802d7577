package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/domain"
)

// ErrExportDisabled is returned when no archive store is configured.
var ErrExportDisabled = errors.New("ledger export is not configured")

// ExportResult describes an uploaded ledger archive.
type ExportResult struct {
	ExportedAt   time.Time `json:"exported_at"`
	Key          string    `json:"key"`
	Location     string    `json:"location"`
	LastHash     string    `json:"last_hash"`
	EntryCount   int64     `json:"entry_count"`
	LastSequence int64     `json:"last_sequence"`
	Bytes        int       `json:"bytes"`
}

// ExportedEntry is the archive line format of one entry. It carries every
// field needed to recompute the hash offline.
type ExportedEntry struct {
	RecordedAt   time.Time          `json:"recorded_at"`
	Timestamp    time.Time          `json:"timestamp"`
	Metadata     map[string]string  `json:"metadata"`
	EventID      string             `json:"event_id"`
	Kind         domain.EventKind   `json:"kind"`
	Stream       domain.Stream      `json:"stream"`
	Provider     domain.Provider    `json:"provider"`
	PreviousHash string             `json:"previous_hash"`
	Hash         string             `json:"hash"`
	Split        domain.SplitResult `json:"split"`
	GrossAmount  int64              `json:"gross_amount"`
	Sequence     int64              `json:"sequence"`
}

// NewExportedEntry converts an entry to its archive form.
func NewExportedEntry(e *domain.LedgerEntry) ExportedEntry {
	metadata := e.Event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return ExportedEntry{
		Sequence:     e.Sequence,
		EventID:      e.Event.EventID,
		Kind:         e.Event.Kind,
		Stream:       e.Event.Stream,
		GrossAmount:  e.Event.GrossAmount,
		Provider:     e.Event.Provider,
		Timestamp:    e.Event.Timestamp,
		Metadata:     metadata,
		Split:        e.Split,
		PreviousHash: e.PreviousHash,
		Hash:         e.Hash,
		RecordedAt:   e.RecordedAt,
	}
}

// ToEntry converts an archive line back to a ledger entry.
func (x ExportedEntry) ToEntry() *domain.LedgerEntry {
	return &domain.LedgerEntry{
		Sequence: x.Sequence,
		Event: domain.PaymentEvent{
			EventID:     x.EventID,
			Kind:        x.Kind,
			Stream:      x.Stream,
			GrossAmount: x.GrossAmount,
			Provider:    x.Provider,
			Timestamp:   x.Timestamp,
			Metadata:    x.Metadata,
		},
		Split:        x.Split,
		PreviousHash: x.PreviousHash,
		Hash:         x.Hash,
		RecordedAt:   x.RecordedAt,
	}
}

// ExportUseCase archives verified snapshots of the ledger.
type ExportUseCase struct {
	ledger LedgerRepository
	store  ArchiveStore
	logger zerolog.Logger
	prefix string
	now    func() time.Time
}

// NewExportUseCase creates a new ExportUseCase. A nil store disables export.
func NewExportUseCase(ledger LedgerRepository, store ArchiveStore, prefix string, logger zerolog.Logger) *ExportUseCase {
	return &ExportUseCase{
		ledger: ledger,
		store:  store,
		prefix: prefix,
		logger: logger.With().Str("component", "export").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether an archive store is configured.
func (uc *ExportUseCase) Enabled() bool {
	return uc.store != nil
}

// Export verifies one snapshot and uploads it as JSON Lines. A broken chain
// is never exported.
func (uc *ExportUseCase) Export(ctx context.Context) (*ExportResult, error) {
	if uc.store == nil {
		return nil, ErrExportDisabled
	}

	entries, err := uc.ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	verification := VerifyEntries(entries)
	if err := verification.Err(); err != nil {
		return nil, err
	}

	body, err := EncodeJSONLines(entries)
	if err != nil {
		return nil, err
	}

	key := ArchiveKey(uc.prefix, verification.EntryCount-1, verification.LastHash)
	location, err := uc.store.Put(ctx, key, body, "application/x-ndjson")
	if err != nil {
		return nil, fmt.Errorf("upload archive: %w", err)
	}

	result := &ExportResult{
		ExportedAt:   uc.now(),
		Key:          key,
		Location:     location,
		LastHash:     verification.LastHash,
		EntryCount:   verification.EntryCount,
		LastSequence: verification.EntryCount - 1,
		Bytes:        len(body),
	}

	uc.logger.Info().
		Str("key", key).
		Int64("entries", result.EntryCount).
		Int("bytes", result.Bytes).
		Msg("ledger exported")

	return result, nil
}

// EncodeJSONLines writes one JSON document per entry.
func EncodeJSONLines(entries []*domain.LedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(NewExportedEntry(e)); err != nil {
			return nil, fmt.Errorf("encode entry %d: %w", e.Sequence, err)
		}
	}
	return buf.Bytes(), nil
}

// ArchiveKey names an archive after the head it covers.
func ArchiveKey(prefix string, lastSequence int64, lastHash string) string {
	short := lastHash
	if len(short) > 12 {
		short = short[:12]
	}
	if short == "" {
		short = "empty"
	}
	return path.Join(prefix, fmt.Sprintf("ledger-%d-%s.jsonl", lastSequence, short))
}
