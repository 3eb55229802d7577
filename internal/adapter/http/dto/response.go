package dto

import (
	"time"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

// SplitResponse is a split in minor units with major-unit renderings.
type SplitResponse struct {
	Charity              int64  `json:"charity"`
	Infrastructure       int64  `json:"infrastructure"`
	Founder              int64  `json:"founder"`
	CharityAmount        string `json:"charity_amount"`
	InfrastructureAmount string `json:"infrastructure_amount"`
	FounderAmount        string `json:"founder_amount"`
}

// SplitFromDomain converts a split result to response.
func SplitFromDomain(s domain.SplitResult) SplitResponse {
	return SplitResponse{
		Charity:              s.Charity,
		Infrastructure:       s.Infrastructure,
		Founder:              s.Founder,
		CharityAmount:        domain.MajorUnits(s.Charity),
		InfrastructureAmount: domain.MajorUnits(s.Infrastructure),
		FounderAmount:        domain.MajorUnits(s.Founder),
	}
}

// EntryResponse represents a ledger entry in API responses.
type EntryResponse struct {
	Sequence     int64             `json:"sequence"`
	EventID      string            `json:"event_id"`
	Kind         string            `json:"kind"`
	Stream       string            `json:"stream"`
	Provider     string            `json:"provider"`
	GrossAmount  int64             `json:"gross_amount"`
	Gross        string            `json:"gross"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata"`
	Split        SplitResponse     `json:"split"`
	PreviousHash string            `json:"previous_hash"`
	Hash         string            `json:"hash"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// EntryFromDomain converts a ledger entry to response.
func EntryFromDomain(e *domain.LedgerEntry) *EntryResponse {
	metadata := e.Event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &EntryResponse{
		Sequence:     e.Sequence,
		EventID:      e.Event.EventID,
		Kind:         string(e.Event.Kind),
		Stream:       string(e.Event.Stream),
		Provider:     string(e.Event.Provider),
		GrossAmount:  e.Event.GrossAmount,
		Gross:        domain.MajorUnits(e.Event.GrossAmount),
		Timestamp:    e.Event.Timestamp,
		Metadata:     metadata,
		Split:        SplitFromDomain(e.Split),
		PreviousHash: e.PreviousHash,
		Hash:         e.Hash,
		RecordedAt:   e.RecordedAt,
	}
}

// EntriesFromDomain converts ledger entries to responses.
func EntriesFromDomain(entries []*domain.LedgerEntry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// EntriesResponse is a page of the chain. NextFrom is set when the page
// was full and more entries may follow.
type EntriesResponse struct {
	Entries  []*EntryResponse `json:"entries"`
	NextFrom *int64           `json:"next_from,omitempty"`
}

// OutcomeResponse reports what happened to a submitted event.
type OutcomeResponse struct {
	EventID string         `json:"event_id"`
	Status  string         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Entry   *EntryResponse `json:"entry,omitempty"`
}

// OutcomeFromUseCase converts an outcome to response.
func OutcomeFromUseCase(eventID string, o usecase.Outcome) *OutcomeResponse {
	resp := &OutcomeResponse{
		EventID: eventID,
		Status:  string(o.Status),
		Reason:  o.Reason,
	}
	if o.Entry != nil {
		resp.Entry = EntryFromDomain(o.Entry)
	}
	return resp
}

// ReplayResponse lists replay outcomes in request order.
type ReplayResponse struct {
	Outcomes []*OutcomeResponse `json:"outcomes"`
	Accepted int                `json:"accepted"`
	Failed   int                `json:"failed"`
}

// BucketSummary is one allocation bucket in a summary.
type BucketSummary struct {
	Total  int64  `json:"total"`
	Amount string `json:"amount"`
	Share  string `json:"share_percent"`
}

// SummaryResponse represents the aggregate summary in API responses.
type SummaryResponse struct {
	TotalGross       int64            `json:"total_gross"`
	TotalGrossAmount string           `json:"total_gross_amount"`
	TotalRefunded    int64            `json:"total_refunded"`
	Charity          BucketSummary    `json:"charity"`
	Infrastructure   BucketSummary    `json:"infrastructure"`
	Founder          BucketSummary    `json:"founder"`
	ByStream         map[string]int64 `json:"by_stream"`
	EntryCount       int64            `json:"entry_count"`
	LastSequence     int64            `json:"last_sequence"`
	LastHash         string           `json:"last_hash"`
	LastVerifiedAt   time.Time        `json:"last_verified_at"`
	Valid            bool             `json:"valid"`
	BrokenAt         *int64           `json:"broken_at"`
}

func bucket(total, gross int64) BucketSummary {
	return BucketSummary{
		Total:  total,
		Amount: domain.MajorUnits(total),
		Share:  domain.Share(total, gross),
	}
}

// SummaryFromUseCase converts a summary to response.
func SummaryFromUseCase(s *usecase.Summary) *SummaryResponse {
	byStream := make(map[string]int64, len(s.ByStream))
	for k, v := range s.ByStream {
		byStream[string(k)] = v
	}
	return &SummaryResponse{
		TotalGross:       s.TotalGross,
		TotalGrossAmount: domain.MajorUnits(s.TotalGross),
		TotalRefunded:    s.TotalRefunded,
		Charity:          bucket(s.TotalCharity, s.TotalGross),
		Infrastructure:   bucket(s.TotalInfrastructure, s.TotalGross),
		Founder:          bucket(s.TotalFounder, s.TotalGross),
		ByStream:         byStream,
		EntryCount:       s.EntryCount,
		LastSequence:     s.LastSequence,
		LastHash:         s.LastHash,
		LastVerifiedAt:   s.LastVerifiedAt,
		Valid:            s.Valid,
		BrokenAt:         s.BrokenAt,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
