// Package app is the wiring layer between the CLI and the substrate. It
// constructs all dependencies from config and manages the store and log
// lifecycles on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"casevault/internal/config"
	"casevault/internal/core"
	"casevault/internal/database"
	"casevault/internal/database/migrations"
	"casevault/internal/encryption"
	"casevault/internal/gdpr"
	"casevault/internal/keys"
	"casevault/internal/records"
	"casevault/internal/vault"
)

// App holds the fully wired substrate. Services that need the field key
// (Records, GDPR) are nil until UnlockEncryption runs; backup, migration and
// audit operations work on a locked vault.
type App struct {
	cfg      *config.Config
	store    *database.Store
	keymgr   *keys.Manager
	guard    *core.Guard
	verifier *core.Verifier
	recorder *core.Recorder
	backups  *core.BackupManager
	logger   core.Logger
	logFile  *os.File

	Records *records.Service
	GDPR    *gdpr.Service
}

// NewApp creates an App from the given config. operation identifies the CLI
// command being run (e.g. "Restore", "RunMigrations"). The caller must call
// Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, operation, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening primary store: %w", err)
	}

	clock := core.RealClock{}
	idgen := core.UUIDGenerator{}

	recorder := core.NewRecorder(database.NewAuditStore(store), logger, clock, idgen)
	guard := core.NewGuard(database.NewSessionStore(store), clock)
	verifier := core.NewVerifier(database.NewOwnerStore(store))

	var replication core.Vault
	if len(cfg.Vaults) > 0 {
		replication, err = vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			store.Close()
			logFile.Close()
			return nil, fmt.Errorf("creating replication vault: %w", err)
		}
	}

	backups := core.NewBackupManager(store, database.Inspector{}, migrations.NewMigrator(store),
		replication, recorder, logger, clock, cfg.Backup.Dir)

	logger.Info("operation started")

	return &App{
		cfg:      cfg,
		store:    store,
		keymgr:   keys.NewManager(cfg.Encryption.KeyPath),
		guard:    guard,
		verifier: verifier,
		recorder: recorder,
		backups:  backups,
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// KeyManager returns the field-key manager for setup flows.
func (a *App) KeyManager() *keys.Manager {
	return a.keymgr
}

// Backups returns the backup manager.
func (a *App) Backups() *core.BackupManager {
	return a.backups
}

// Recorder returns the audit recorder for ledger reads.
func (a *App) Recorder() *core.Recorder {
	return a.recorder
}

// RestoreBackup runs a restore under the session's verified identity.
func (a *App) RestoreBackup(ctx context.Context, sessionID, filename string) error {
	return a.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		return a.backups.Restore(ctx, filename, userID)
	})
}

// DeleteBackup deletes a backup under the session's verified identity.
func (a *App) DeleteBackup(ctx context.Context, sessionID, filename string) error {
	return a.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		return a.backups.DeleteBackup(ctx, filename, userID)
	})
}

// UnlockEncryption unwraps the field key with the passphrase and wires the
// services that handle encrypted data.
func (a *App) UnlockEncryption(passphrase string) error {
	var key []byte
	if a.cfg.Encryption.Type != "test" {
		if err := a.keymgr.Unlock(passphrase); err != nil {
			return fmt.Errorf("unlocking field key: %w", err)
		}
		var err error
		key, err = a.keymgr.Key()
		if err != nil {
			return err
		}
	}

	cipher, err := encryption.NewCipherFromConfig(a.cfg.Encryption, key)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	clock := core.RealClock{}
	repo := records.NewRepository(a.store)
	a.Records = records.NewService(repo, a.guard, a.verifier, cipher, a.recorder, a.logger, clock, core.UUIDGenerator{})
	a.GDPR = gdpr.NewService(a.store, repo, a.guard, cipher, a.recorder, a.logger, clock)
	return nil
}

// Close shuts down key material, the store and the log file.
func (a *App) Close() error {
	var firstErr error

	a.keymgr.Shutdown()

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
