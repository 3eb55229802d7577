package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/revledger/internal/adapter/http/dto"
	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/auth"
	"github.com/iho/revledger/internal/usecase"
)

func verifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the hash chain from genesis",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result usecase.VerifyResult
			if _, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/ledger/verify", nil, &result, http.StatusOK, http.StatusConflict); err != nil {
				return err
			}

			if err := render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) {
				printVerifyText(w, &result)
			}); err != nil {
				return err
			}

			if !result.Valid {
				return errChainBroken
			}
			return nil
		},
	}
}

func printVerifyText(w io.Writer, result *usecase.VerifyResult) {
	if result.Valid {
		fmt.Fprintf(w, "Chain VALID\n")
	} else {
		fmt.Fprintf(w, "Chain BROKEN at sequence %d: %s\n", derefSeq(result.BrokenAt), result.Reason)
	}
	fmt.Fprintf(w, "Entries:   %d\n", result.EntryCount)
	fmt.Fprintf(w, "Last hash: %s\n", result.LastHash)
}

func auditCmd(opts *options) *cobra.Command {
	var checkPolicy bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify the chain and report split policy deviations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report usecase.AuditReport
			if _, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/ledger/audit", nil, &report, http.StatusOK, http.StatusConflict); err != nil {
				return err
			}

			if err := render(cmd.OutOrStdout(), opts.output, report, func(w io.Writer) {
				printAuditText(w, &report)
			}); err != nil {
				return err
			}

			if report.Verification == nil || !report.Verification.Valid {
				return errChainBroken
			}
			if checkPolicy && len(report.PolicyDeviations) > 0 {
				return fmt.Errorf("%d entries deviate from policy %s", len(report.PolicyDeviations), report.Policy)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkPolicy, "check-policy", false, "Exit non-zero when stored splits deviate from the current policy")
	return cmd
}

func printAuditText(w io.Writer, report *usecase.AuditReport) {
	if report.Verification != nil {
		printVerifyText(w, report.Verification)
	}
	fmt.Fprintf(w, "Policy:    %s\n", report.Policy)
	fmt.Fprintf(w, "Deviations: %d\n", len(report.PolicyDeviations))
	for _, d := range report.PolicyDeviations {
		fmt.Fprintf(w, "  #%d %s stored=%d/%d/%d expected=%d/%d/%d\n",
			d.Sequence, truncate(d.EventID, 32),
			d.Stored.Charity, d.Stored.Infrastructure, d.Stored.Founder,
			d.Expected.Charity, d.Expected.Infrastructure, d.Expected.Founder)
	}
	if len(report.DuplicateEvents) > 0 {
		fmt.Fprintf(w, "Duplicate event ids: %d\n", len(report.DuplicateEvents))
		for _, id := range report.DuplicateEvents {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
}

func summaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show aggregate totals per bucket and stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			var summary dto.SummaryResponse
			if _, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/ledger/summary", nil, &summary, http.StatusOK, http.StatusConflict); err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts.output, summary, func(w io.Writer) {
				fmt.Fprintf(w, "Gross:          %s (%d entries, %d refunded)\n", summary.TotalGrossAmount, summary.EntryCount, summary.TotalRefunded)
				fmt.Fprintf(w, "Charity:        %s (%s%%)\n", summary.Charity.Amount, summary.Charity.Share)
				fmt.Fprintf(w, "Infrastructure: %s (%s%%)\n", summary.Infrastructure.Amount, summary.Infrastructure.Share)
				fmt.Fprintf(w, "Founder:        %s (%s%%)\n", summary.Founder.Amount, summary.Founder.Share)
				for stream, total := range summary.ByStream {
					fmt.Fprintf(w, "  %-12s %s\n", stream, domain.MajorUnits(total))
				}
				if !summary.Valid {
					fmt.Fprintf(w, "WARNING: chain broken at sequence %d, totals cover entries before the break\n", derefSeq(summary.BrokenAt))
				}
			})
		},
	}
}

func entriesCmd(opts *options) *cobra.Command {
	var (
		from  int64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Dump ledger entries in sequence order",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/ledger/entries"
			if cmd.Flags().Changed("from") || cmd.Flags().Changed("limit") {
				q := url.Values{}
				q.Set("from", strconv.FormatInt(from, 10))
				q.Set("limit", strconv.Itoa(limit))
				path += "?" + q.Encode()
			}

			var resp dto.EntriesResponse
			if _, err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts.output, resp, func(w io.Writer) {
				fmt.Fprintf(w, "%-6s %-24s %-8s %-12s %12s %-16s\n", "SEQ", "EVENT", "KIND", "STREAM", "GROSS", "HASH")
				for _, e := range resp.Entries {
					fmt.Fprintf(w, "%-6d %-24s %-8s %-12s %12s %-16s\n",
						e.Sequence, truncate(e.EventID, 24), e.Kind, e.Stream, e.Gross, truncate(e.Hash, 16))
				}
				if resp.NextFrom != nil {
					fmt.Fprintf(w, "next page: --from %d\n", *resp.NextFrom)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&from, "from", 1, "First sequence number to return")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of entries to return")
	return cmd
}

func replayCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reprocess events from a JSON or JSON lines file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			events, err := parseEvents(data)
			if err != nil {
				return err
			}

			var resp dto.ReplayResponse
			if _, err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/admin/replay", dto.ReplayRequest{Events: events}, &resp, http.StatusOK); err != nil {
				return err
			}

			if err := render(cmd.OutOrStdout(), opts.output, resp, func(w io.Writer) {
				for _, o := range resp.Outcomes {
					line := fmt.Sprintf("%-24s %s", truncate(o.EventID, 24), o.Status)
					if o.Reason != "" {
						line += " (" + o.Reason + ")"
					}
					fmt.Fprintln(w, line)
				}
				fmt.Fprintf(w, "accepted=%d failed=%d total=%d\n", resp.Accepted, resp.Failed, len(resp.Outcomes))
			}); err != nil {
				return err
			}

			if resp.Failed > 0 {
				return fmt.Errorf("%d events failed, rerun replay once storage recovers", resp.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File with events: a JSON array or one JSON object per line")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// parseEvents accepts a JSON array or JSON lines.
func parseEvents(data []byte) ([]dto.PaymentEventRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("no events in file")
	}

	var events []dto.PaymentEventRequest
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("failed to parse events: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		line := 0
		for scanner.Scan() {
			line++
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			var ev dto.PaymentEventRequest
			if err := json.Unmarshal(raw, &ev); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			events = append(events, ev)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(events) == 0 {
		return nil, errors.New("no events in file")
	}
	if len(events) > dto.MaxReplayEvents {
		return nil, fmt.Errorf("%d events exceed the replay limit of %d", len(events), dto.MaxReplayEvents)
	}
	return events, nil
}

func exportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Upload a verified snapshot of the chain to the archive bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result usecase.ExportResult
			if _, err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/admin/exports", nil, &result, http.StatusCreated); err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) {
				fmt.Fprintf(w, "Exported %d entries (%d bytes)\n", result.EntryCount, result.Bytes)
				fmt.Fprintf(w, "Location:  %s\n", result.Location)
				fmt.Fprintf(w, "Last hash: %s\n", result.LastHash)
			})
		},
	}
}

func tokenCmd(opts *options) *cobra.Command {
	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token from the shared JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("a secret is required (--secret or JWT_SECRET)")
			}
			r := domain.Role(role)
			if !r.IsValid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
			}

			token, err := auth.NewJWTManager(secret, ttl).Generate(subject, r)
			if err != nil {
				return err
			}

			out := struct {
				Token     string    `json:"token"`
				Subject   string    `json:"subject"`
				Role      string    `json:"role"`
				ExpiresAt time.Time `json:"expires_at"`
			}{token, subject, role, time.Now().Add(ttl).UTC()}

			return render(cmd.OutOrStdout(), opts.output, out, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleOperator), "Role: operator or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func derefSeq(seq *int64) int64 {
	if seq == nil {
		return 0
	}
	return *seq
}
