package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"casevault/internal/app"
	"casevault/internal/config"
	"casevault/internal/core"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Restore", "RunMigrations").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts for a passphrase without echoing it.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(data), nil
}

var (
	sessionFlag string
	labelFlag   string
	limitFlag   int
	keepFlag    int
)

var rootCmd = &cobra.Command{
	Use:   "casevault",
	Short: "Case-management security and durability substrate",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Path)
		fmt.Printf("Backup Dir: %s\n", cfg.Backup.Dir)
		fmt.Printf("Retention:  keep %d\n", cfg.Backup.RetentionKeep)
		return nil
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the field-encryption key",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the field-encryption key",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "KeySetup")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.KeyManager().IsConfigured() {
			return fmt.Errorf("field key already configured")
		}

		passphrase, err := readPassphrase("Passphrase for new key: ")
		if err != nil {
			return err
		}

		if err := a.KeyManager().Setup(passphrase); err != nil {
			return fmt.Errorf("setting up key: %w", err)
		}

		fmt.Println("Field-encryption key created")
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage store snapshots",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot of the primary store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "CreateBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		meta, err := a.Backups().CreateBackup(cmd.Context(), labelFlag)
		if err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}

		fmt.Printf("Created %s (%d bytes, %d records)\n", meta.Filename, meta.Size, meta.Stats.RecordCount)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		backups, err := a.Backups().ListBackups(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing backups: %w", err)
		}

		for _, b := range backups {
			status := "ok"
			records := int64(0)
			if !b.Valid {
				status = "CORRUPT"
			} else {
				records = b.Stats.RecordCount
			}
			fmt.Printf("%s\t%d bytes\t%s\t%s\trecords=%d\n",
				b.Filename, b.Size, b.CreatedAt.UTC().Format("2006-01-02 15:04:05"), status, records)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <filename>",
	Short: "Restore the primary store from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RestoreBackup(cmd.Context(), sessionFlag, args[0]); err != nil {
			return fmt.Errorf("restoring backup: %w", err)
		}

		fmt.Printf("Restored from %s\n", args[0])
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a snapshot (irreversible)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteBackup(cmd.Context(), sessionFlag, args[0]); err != nil {
			return fmt.Errorf("deleting backup: %w", err)
		}

		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy to manual snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ApplyRetention")
		if err != nil {
			return err
		}
		defer a.Close()

		keep := resolveKeep(cmd.Flags().Changed("keep"), keepFlag, a.Config().Backup.RetentionKeep)
		pruned, err := a.Backups().ApplyRetention(cmd.Context(), keep)
		if err != nil {
			return fmt.Errorf("pruning backups: %w", err)
		}

		fmt.Printf("Pruned %d snapshot(s), kept %d\n", pruned, keep)
		return nil
	},
}

// resolveKeep picks the retention count for prune: an explicit --keep wins,
// otherwise the configured retention_keep applies.
func resolveKeep(flagSet bool, flagValue, configured int) int {
	if flagSet {
		return flagValue
	}
	return configured
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run schema migrations (snapshots the store first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RunMigrations")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Backups().RunMigrations(cmd.Context())
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		fmt.Printf("Schema at version %d (%d applied), snapshot %s\n",
			state.Version, len(state.Applied), state.SnapshotName)
		return nil
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the audit ledger",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListAuditEvents")
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.Recorder().List(cmd.Context(), core.AuditFilter{Limit: limitFlag})
		if err != nil {
			return fmt.Errorf("listing audit events: %w", err)
		}

		for _, e := range events {
			user := "-"
			if e.UserID != nil {
				user = fmt.Sprint(*e.UserID)
			}
			outcome := "ok"
			if !e.Success {
				outcome = "FAILED: " + e.ErrorMessage
			}
			fmt.Printf("%s\t%s\tuser=%s\t%s/%s\t%s\n",
				e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Action, user,
				e.ResourceType, e.ResourceID, outcome)
		}
		return nil
	},
}

// gdpr command
var gdprCmd = &cobra.Command{
	Use:   "gdpr",
	Short: "Data-subject export and erasure",
}

var gdprExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all data for the session's user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ExportUserData")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Key passphrase: ")
		if err != nil {
			return err
		}
		if err := a.UnlockEncryption(passphrase); err != nil {
			return err
		}

		export, err := a.GDPR.ExportUserData(cmd.Context(), sessionFlag)
		if err != nil {
			return fmt.Errorf("exporting user data: %w", err)
		}

		fmt.Printf("Export for user %d: %d case(s), %d evidence item(s), %d audit event(s)\n",
			export.UserID, len(export.Cases), len(export.Evidence), len(export.AuditTrail))
		return nil
	},
}

var gdprEraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase all data for the session's user (audit and consent records are preserved)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "EraseUserData")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Key passphrase: ")
		if err != nil {
			return err
		}
		if err := a.UnlockEncryption(passphrase); err != nil {
			return err
		}

		if err := a.GDPR.EraseUserData(cmd.Context(), sessionFlag); err != nil {
			return fmt.Errorf("erasing user data: %w", err)
		}

		fmt.Println("User data erased")
		return nil
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&labelFlag, "label", "", "optional label appended to the snapshot filename")
	backupRestoreCmd.Flags().StringVar(&sessionFlag, "session", "", "session token of the administrative user")
	backupRestoreCmd.MarkFlagRequired("session")
	backupDeleteCmd.Flags().StringVar(&sessionFlag, "session", "", "session token of the administrative user")
	backupDeleteCmd.MarkFlagRequired("session")
	backupPruneCmd.Flags().IntVar(&keepFlag, "keep", 0, "manual snapshots to keep, overrides retention_keep from config (0 disables pruning)")
	auditListCmd.Flags().IntVar(&limitFlag, "limit", 50, "maximum number of events")
	gdprExportCmd.Flags().StringVar(&sessionFlag, "session", "", "session token of the user")
	gdprExportCmd.MarkFlagRequired("session")
	gdprEraseCmd.Flags().StringVar(&sessionFlag, "session", "", "session token of the user")
	gdprEraseCmd.MarkFlagRequired("session")

	configCmd.AddCommand(configInitCmd, configListCmd)
	keyCmd.AddCommand(keyInitCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupDeleteCmd, backupPruneCmd)
	auditCmd.AddCommand(auditListCmd)
	gdprCmd.AddCommand(gdprExportCmd, gdprEraseCmd)
	rootCmd.AddCommand(configCmd, keyCmd, backupCmd, migrateCmd, auditCmd, gdprCmd)
}
