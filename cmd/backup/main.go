package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studydash/internal/config"
	"studydash/internal/database"
	"studydash/internal/logging"
	"studydash/internal/service"
)

func main() {
	if err := newRootCmd(os.Stdin).Execute(); err != nil {
		os.Exit(1)
	}
}

type backupEnv struct {
	db      *database.DB
	service *service.BackupService
	log     *zap.Logger
}

// open connects to the configured database and brings the schema up to date
func open(ctx context.Context) (*backupEnv, error) {
	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if _, err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &backupEnv{db: db, service: service.NewBackupService(db, log), log: log}, nil
}

func (e *backupEnv) close() {
	e.db.Close()
	_ = e.log.Sync()
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	root := &cobra.Command{
		Use:   "backup",
		Short: "studydash database backup tool",
		Long: `Export or import the studydash database as JSON.

Environment Variables:
  DATABASE_TYPE    Database type: sqlite, postgres, or mysql (default: sqlite)
  DB_PATH          SQLite database path (default: ./studydash.db)
  DATABASE_URL     PostgreSQL or MySQL connection URL`,
		SilenceUsage: true,
	}
	root.AddCommand(newExportCmd(), newImportCmd(stdin))
	return root
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Export database to JSON file",
		Example: "  backup export\n  backup export --output mybackup.json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
			}
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			env.log.Info("Exporting database", zap.String("output", output))
			if err := env.service.Export(cmd.Context(), output); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			env.log.Info("Export complete", zap.String("size", fmt.Sprintf("%.2f MB", float64(info.Size())/1024/1024)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newImportCmd(stdin io.Reader) *cobra.Command {
	var (
		input     string
		clearData bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import database from JSON file",
		Example: `  # merge with existing data
  backup import --input backup.json

  # replace all data
  backup import --input backup.json --clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("input file does not exist: %s", input)
			}
			if clearData && !confirm(cmd.OutOrStdout(), stdin) {
				fmt.Fprintln(cmd.OutOrStdout(), "Import cancelled")
				return nil
			}

			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			if clearData {
				env.log.Info("Clearing existing data")
				if err := env.service.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("failed to clear database: %w", err)
				}
			}
			env.log.Info("Importing database", zap.String("input", input))
			if err := env.service.Import(cmd.Context(), input); err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			env.log.Info("Import complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input file path")
	cmd.Flags().BoolVar(&clearData, "clear", false, "clear existing data before import (WARNING: destructive)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// confirm asks for a typed "yes" before destructive work
func confirm(out io.Writer, in io.Reader) bool {
	fmt.Fprint(out, "WARNING: This will delete all existing data. Type 'yes' to confirm: ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}
