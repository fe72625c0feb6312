// Package alert scans stored inventory records, applies expiration
// eligibility bands and cooldown rules, groups eligible records by recipient,
// and dispatches deduplicated notifications.
package alert

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	vwerrors "github.com/vaultwatch/vaultwatch/internal/errors"
	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/logging"
	"github.com/vaultwatch/vaultwatch/internal/metrics"
)

// ErrAlertRunInProgress is returned when an alert run is requested while
// another one is still running. Without this guard two concurrent runs could
// both observe the same eligible record and double-send.
var ErrAlertRunInProgress = errors.New("alert run already in progress")

// scanPageSize bounds how many records are pulled from the store per page
// while evaluating.
const scanPageSize = 500

// Band classifies a record by remaining days to expiration.
type Band int

const (
	// BandNone: more than 60 days remaining, never alerted.
	BandNone Band = iota

	// BandWarning: between 31 and 60 days remaining, alerted once ever.
	BandWarning

	// BandReminder: 30 days or fewer remaining, alerted at most once per
	// rolling 24 hours.
	BandReminder
)

// bandFor classifies days remaining. Records without an expiration are never
// eligible.
func bandFor(daysRemaining *int) Band {
	if daysRemaining == nil {
		return BandNone
	}
	switch d := *daysRemaining; {
	case d <= 30:
		return BandReminder
	case d <= 60:
		return BandWarning
	default:
		return BandNone
	}
}

// reminderCooldown is the minimum gap between reminder-band alerts for the
// same record.
const reminderCooldown = 24 * time.Hour

// Options control one alert run.
type Options struct {
	// ObjectNames restricts evaluation to the named objects. Empty means all
	// records are checked.
	ObjectNames []string

	// ForceSend bypasses the suppression rules but not band membership.
	ForceSend bool
}

// Stats reports the outcome of one alert run.
type Stats struct {
	ObjectsChecked     int       `json:"objects_checked"`
	AlertsSent         int       `json:"alerts_sent"`
	Errors             []string  `json:"errors"`
	RecipientsNotified []string  `json:"recipients_notified"`
	ProcessedAt        time.Time `json:"alert_processed_at"`
}

// Evaluator runs the alert pipeline.
type Evaluator struct {
	store    inventory.Store
	notifier Notifier
	logger   *logging.Logger
	recorder *metrics.Recorder
	now      func() time.Time

	mu sync.Mutex // single-flight guard for Run
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// New creates an Evaluator.
func New(store inventory.Store, notifier Notifier, logger *logging.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = logging.New(false, true)
	}
	e := &Evaluator{
		store:    store,
		notifier: notifier,
		logger:   logger.WithComponent("alert"),
		recorder: metrics.NewRecorder(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every stored record (or the named subset), dispatches one
// notification per recipient carrying that recipient's eligible records, and
// persists last_alert_sent for each record in a successful dispatch. Dispatch
// failures are recorded per recipient and never abort the run.
func (e *Evaluator) Run(ctx context.Context, opts Options) (*Stats, error) {
	if !e.mu.TryLock() {
		return nil, ErrAlertRunInProgress
	}
	defer e.mu.Unlock()

	now := e.now().UTC()
	stats := &Stats{
		Errors:             []string{},
		RecipientsNotified: []string{},
	}

	nameFilter := make(map[string]bool, len(opts.ObjectNames))
	for _, name := range opts.ObjectNames {
		nameFilter[name] = true
	}

	byRecipient := make(map[string][]inventory.KeyVaultObject)
	for page := 1; ; page++ {
		result, err := e.store.Query(ctx, inventory.Filter{}, page, scanPageSize)
		if err != nil {
			e.recorder.RecordAlertRun("error")
			return nil, err
		}

		for _, rec := range result.Items {
			if len(nameFilter) > 0 && !nameFilter[rec.ObjectName] {
				continue
			}
			stats.ObjectsChecked++

			if !e.shouldSend(&rec, opts.ForceSend, now) {
				continue
			}

			recipient := rec.Recipient()
			if recipient == "" {
				// Checked but unroutable; skipped without error.
				e.logger.Debug("no recipient for %s/%s, skipping", rec.VaultName, rec.ObjectName)
				continue
			}
			byRecipient[recipient] = append(byRecipient[recipient], rec)
		}

		if !result.HasNext {
			break
		}
	}

	recipients := make([]string, 0, len(byRecipient))
	for recipient := range byRecipient {
		recipients = append(recipients, recipient)
	}
	sort.Strings(recipients)

	for _, recipient := range recipients {
		records := byRecipient[recipient]
		if err := e.notifier.SendAlertEmail(ctx, recipient, records); err != nil {
			nerr := vwerrors.NotificationError{Recipient: recipient, Err: err}
			e.logger.Error("%v", nerr)
			e.recorder.RecordDispatchFailure()
			stats.Errors = append(stats.Errors, nerr.Error())
			continue
		}

		stats.AlertsSent += len(records)
		stats.RecipientsNotified = append(stats.RecipientsNotified, recipient)
		e.recorder.RecordAlertsSent(len(records))

		// Timestamps are persisted per record, not atomically for the whole
		// batch; a mid-batch store failure is reported and the rest continue.
		for _, rec := range records {
			if err := e.store.MarkAlerted(ctx, rec.VaultName, rec.ObjectName, rec.ObjectType, now); err != nil {
				stats.Errors = append(stats.Errors, err.Error())
			}
		}
	}

	stats.ProcessedAt = now

	status := "success"
	if len(stats.Errors) > 0 {
		status = "partial"
	}
	e.recorder.RecordAlertRun(status)

	e.logger.Info("alert run completed: %d checked, %d sent, %d recipients, %d errors",
		stats.ObjectsChecked, stats.AlertsSent, len(stats.RecipientsNotified), len(stats.Errors))

	return stats, nil
}

// shouldSend applies band membership and suppression. ForceSend bypasses
// suppression only: out-of-band records are never sent.
func (e *Evaluator) shouldSend(rec *inventory.KeyVaultObject, forceSend bool, now time.Time) bool {
	band := bandFor(rec.DaysRemaining)
	if band == BandNone {
		return false
	}
	if forceSend {
		return true
	}

	switch band {
	case BandWarning:
		// Warning alerts go out once ever.
		return rec.LastAlertSent == nil
	case BandReminder:
		// Reminders repeat after the cooldown lapses.
		return rec.LastAlertSent == nil || now.Sub(*rec.LastAlertSent) >= reminderCooldown
	default:
		return false
	}
}
