package commands

import (
	"encoding/json"
	"os"
	"time"

	"github.com/vaultwatch/vaultwatch/internal/alert"
	"github.com/vaultwatch/vaultwatch/internal/config"
	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/logging"
	"github.com/vaultwatch/vaultwatch/internal/retry"
	"github.com/vaultwatch/vaultwatch/internal/syncer"
	"github.com/vaultwatch/vaultwatch/internal/vault"
)

// Options carries global flag state into every command.
type Options struct {
	ConfigPath string
	Logger     *logging.Logger
}

// services holds the wired pipeline dependencies shared by the commands.
type services struct {
	cfg       *config.Config
	store     inventory.Store
	vaults    vault.Client
	syncer    *syncer.Syncer
	evaluator *alert.Evaluator
	notifier  *alert.SMTPNotifier
}

// buildServices wires clients and pipelines from the configuration. The
// caller owns the store and must close it.
func buildServices(opts *Options) (*services, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	cred, err := vault.NewCredential(vault.CredentialConfig{
		TenantID:           cfg.Azure.TenantID,
		ClientID:           cfg.Azure.ClientID,
		ClientSecret:       cfg.Azure.ClientSecret,
		UseManagedIdentity: cfg.Azure.UseManagedIdentity,
		UserAssignedID:     cfg.Azure.UserAssignedID,
	})
	if err != nil {
		return nil, err
	}

	store, err := inventory.NewBadgerStore(cfg.Store.Path, opts.Logger)
	if err != nil {
		return nil, err
	}

	client := vault.NewAzureClient(cred, opts.Logger)
	policy := retry.Policy{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.RetryBaseDelay(),
		MaxDelay:  cfg.RetryMaxDelay(),
	}

	sync := syncer.New(client, store, opts.Logger,
		syncer.WithConcurrency(cfg.Sync.Concurrency),
		syncer.WithRetryPolicy(policy),
	)

	notifier := alert.NewSMTPNotifier(alert.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	eval := alert.New(store, notifier, opts.Logger)

	return &services{
		cfg:       cfg,
		store:     store,
		vaults:    client,
		syncer:    sync,
		evaluator: eval,
		notifier:  notifier,
	}, nil
}

// printJSON writes one-shot command results to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// commandTimeout bounds one-shot pipeline invocations from the CLI.
const commandTimeout = 30 * time.Minute
