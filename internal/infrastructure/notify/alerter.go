package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

// AlertCounter counts delivered alerts by severity.
type AlertCounter interface {
	IncAlert(severity string)
}

// LogAlerter writes alerts to the structured log.
type LogAlerter struct {
	logger zerolog.Logger
}

// NewLogAlerter creates a new LogAlerter.
func NewLogAlerter(logger zerolog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.With().Str("component", "alerter").Logger()}
}

// Alert implements usecase.Alerter.
func (a *LogAlerter) Alert(ctx context.Context, alert domain.Alert) error {
	ev := a.logger.Warn()
	if alert.Severity == domain.AlertSeverityCritical {
		ev = a.logger.Error()
	}

	ev.Str("severity", string(alert.Severity)).
		Str("event_id", alert.EventID).
		Str("reason", alert.Reason).
		Time("occurred_at", alert.OccurredAt).
		Msg(alert.Title)

	return nil
}

// WebhookAlerter posts alerts as JSON.
type WebhookAlerter struct {
	client *WebhookClient
}

// NewWebhookAlerter creates a new WebhookAlerter.
func NewWebhookAlerter(client *WebhookClient) *WebhookAlerter {
	return &WebhookAlerter{client: client}
}

// Alert implements usecase.Alerter.
func (a *WebhookAlerter) Alert(ctx context.Context, alert domain.Alert) error {
	return a.client.PostJSON(ctx, alert)
}

// MultiAlerter fans an alert out to every alerter and counts it once.
type MultiAlerter struct {
	alerters []usecase.Alerter
	counter  AlertCounter
}

// NewMultiAlerter creates a MultiAlerter. counter may be nil.
func NewMultiAlerter(counter AlertCounter, alerters ...usecase.Alerter) *MultiAlerter {
	return &MultiAlerter{alerters: alerters, counter: counter}
}

// Alert delivers to all alerters even when some fail.
func (m *MultiAlerter) Alert(ctx context.Context, alert domain.Alert) error {
	if m.counter != nil {
		m.counter.IncAlert(string(alert.Severity))
	}

	var errs []error
	for _, a := range m.alerters {
		if err := a.Alert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
