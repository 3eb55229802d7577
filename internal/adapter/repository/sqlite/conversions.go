package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/iho/revledger/internal/domain"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return domain.NormalizeTime(t).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return domain.NormalizeTime(t), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const entryColumns = `sequence, event_id, kind, stream, provider, gross_amount, event_timestamp,
       metadata, correlation_key, charity, infrastructure, founder,
       previous_hash, hash, recorded_at`

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		entry          domain.LedgerEntry
		kind           string
		stream         string
		provider       string
		eventTimestamp string
		metadata       string
		correlationKey string
		recordedAt     string
	)

	err := row.Scan(
		&entry.Sequence,
		&entry.Event.EventID,
		&kind,
		&stream,
		&provider,
		&entry.Event.GrossAmount,
		&eventTimestamp,
		&metadata,
		&correlationKey,
		&entry.Split.Charity,
		&entry.Split.Infrastructure,
		&entry.Split.Founder,
		&entry.PreviousHash,
		&entry.Hash,
		&recordedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Event.Kind = domain.EventKind(kind)
	entry.Event.Stream = domain.Stream(stream)
	entry.Event.Provider = domain.Provider(provider)

	if entry.Event.Timestamp, err = parseTime(eventTimestamp); err != nil {
		return nil, fmt.Errorf("parse timestamp of entry %d: %w", entry.Sequence, err)
	}
	if entry.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, fmt.Errorf("parse recorded_at of entry %d: %w", entry.Sequence, err)
	}

	entry.Event.Metadata = map[string]string{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &entry.Event.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of entry %d: %w", entry.Sequence, err)
		}
	}

	return &entry, nil
}

func isEventIDConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(sqliteErr.Error(), "ledger_entries.event_id")
}
