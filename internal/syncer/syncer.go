// Package syncer reconciles external vault state into the local inventory:
// it walks subscriptions and vaults, maps listed objects into records, and
// writes them through the store in one partitioned batch.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	vwerrors "github.com/vaultwatch/vaultwatch/internal/errors"
	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/logging"
	"github.com/vaultwatch/vaultwatch/internal/metrics"
	"github.com/vaultwatch/vaultwatch/internal/retry"
	"github.com/vaultwatch/vaultwatch/internal/vault"
)

// ErrSyncInProgress is returned when a sync run is requested while another
// one is still running. Runs are single-flight to keep concurrent writers
// from racing on the same records.
var ErrSyncInProgress = errors.New("inventory sync already in progress")

// DefaultConcurrency bounds parallel per-vault fetches.
const DefaultConcurrency = 4

// Stats reports the outcome of one sync run. Item-scoped failures are
// collected in Errors; they never abort the run.
type Stats struct {
	RunID                  string    `json:"run_id"`
	SubscriptionsProcessed int       `json:"subscriptions_processed"`
	VaultsProcessed        int       `json:"vaults_processed"`
	SecretsSynced          int       `json:"secrets_synced"`
	CertificatesSynced     int       `json:"certificates_synced"`
	Errors                 []string  `json:"errors"`
	SyncCompletedAt        time.Time `json:"sync_completed_at"`
}

// Syncer orchestrates the inventory sync pipeline.
type Syncer struct {
	client      vault.Client
	store       inventory.Store
	logger      *logging.Logger
	recorder    *metrics.Recorder
	retryPolicy retry.Policy
	concurrency int
	now         func() time.Time

	mu sync.Mutex // single-flight guard for Run
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithConcurrency bounds parallel per-vault fetches.
func WithConcurrency(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetryPolicy overrides the retry policy for vault calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Syncer) {
		s.retryPolicy = p
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New creates a Syncer.
func New(client vault.Client, store inventory.Store, logger *logging.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = logging.New(false, true)
	}
	s := &Syncer{
		client:      client,
		store:       store,
		logger:      logger.WithComponent("sync"),
		recorder:    metrics.NewRecorder(),
		retryPolicy: retry.DefaultPolicy(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one sync pass. When subscriptionIDs is non-empty it acts as
// an allow-list; otherwise every visible subscription is processed. Per-vault
// and per-subscription failures are recorded and skipped; only a failure to
// list subscriptions at all fails the run.
func (s *Syncer) Run(ctx context.Context, subscriptionIDs []string) (*Stats, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	start := s.now()
	stats := &Stats{
		RunID:  uuid.NewString(),
		Errors: []string{},
	}

	subs, err := s.client.ListSubscriptions(ctx)
	if err != nil {
		s.recorder.RecordSyncRun("error", s.now().Sub(start).Seconds())
		return nil, err
	}

	allowed := make(map[string]bool, len(subscriptionIDs))
	for _, id := range subscriptionIDs {
		allowed[id] = true
	}

	var batch []inventory.KeyVaultObject
	for _, sub := range subs {
		if len(allowed) > 0 && !allowed[sub.ID] {
			continue
		}
		s.logger.Info("processing subscription %s", sub.ID)
		records, err := s.syncSubscription(ctx, sub, stats)
		if err != nil {
			// Subscription-scoped failure: recorded, not counted as processed.
			s.recordError(stats, vwerrors.VaultAccessError{Scope: "subscription", Target: sub.ID, Err: err})
			continue
		}
		batch = append(batch, records...)
		stats.SubscriptionsProcessed++
	}

	if len(batch) > 0 {
		result, err := s.store.BatchUpsert(ctx, batch)
		if err != nil && len(result.Chunks) == 0 {
			// Run-fatal only when the batch never started (context gone).
			s.recorder.RecordSyncRun("error", s.now().Sub(start).Seconds())
			return nil, err
		}
		for _, chunk := range result.Failed() {
			stats.Errors = append(stats.Errors, chunk.Err.Error())
		}
	}

	stats.SyncCompletedAt = s.now().UTC()
	s.recorder.RecordObjectsSynced(string(inventory.ObjectTypeSecret), stats.SecretsSynced)
	s.recorder.RecordObjectsSynced(string(inventory.ObjectTypeCertificate), stats.CertificatesSynced)

	status := "success"
	if len(stats.Errors) > 0 {
		status = "partial"
	}
	s.recorder.RecordSyncRun(status, s.now().Sub(start).Seconds())

	s.logger.Info("sync completed: %d subscriptions, %d vaults, %d secrets, %d certificates, %d errors",
		stats.SubscriptionsProcessed, stats.VaultsProcessed,
		stats.SecretsSynced, stats.CertificatesSynced, len(stats.Errors))

	return stats, nil
}

// syncSubscription fetches all vaults of one subscription in parallel and
// returns the mapped records. A vault listing failure fails the subscription;
// per-vault fetch failures land in stats.Errors.
func (s *Syncer) syncSubscription(ctx context.Context, sub vault.Subscription, stats *Stats) ([]inventory.KeyVaultObject, error) {
	var vaults []vault.Vault
	err := retry.Do(ctx, s.retryPolicy, func(ctx context.Context) error {
		var err error
		vaults, err = s.client.ListVaults(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		batch []inventory.KeyVaultObject
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, v := range vaults {
		g.Go(func() error {
			records, secrets, certs, err := s.fetchVault(gctx, v, sub.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.recordError(stats, vwerrors.VaultAccessError{Scope: "vault", Target: v.Name, Err: err})
				return nil
			}
			batch = append(batch, records...)
			stats.SecretsSynced += secrets
			stats.CertificatesSynced += certs
			stats.VaultsProcessed++
			return nil
		})
	}
	_ = g.Wait()

	return batch, nil
}

// fetchVault lists secrets and certificates from one vault and maps them.
func (s *Syncer) fetchVault(ctx context.Context, v vault.Vault, subscriptionID string) (records []inventory.KeyVaultObject, secrets, certs int, err error) {
	s.logger.Debug("processing vault %s", v.Name)
	now := s.now().UTC()

	var secretObjs []vault.Object
	err = retry.Do(ctx, s.retryPolicy, func(ctx context.Context) error {
		var err error
		secretObjs, err = s.client.GetSecrets(ctx, v.URI)
		return err
	})
	if err != nil {
		return nil, 0, 0, err
	}

	var certObjs []vault.Object
	err = retry.Do(ctx, s.retryPolicy, func(ctx context.Context) error {
		var err error
		certObjs, err = s.client.GetCertificates(ctx, v.URI)
		return err
	})
	if err != nil {
		return nil, 0, 0, err
	}

	for _, obj := range secretObjs {
		records = append(records, MapObject(obj, v.Name, subscriptionID, now))
	}
	for _, obj := range certObjs {
		records = append(records, MapObject(obj, v.Name, subscriptionID, now))
	}

	return records, len(secretObjs), len(certObjs), nil
}

func (s *Syncer) recordError(stats *Stats, err error) {
	s.logger.Error("%v", err)
	s.recorder.RecordVaultError()
	stats.Errors = append(stats.Errors, err.Error())
}
