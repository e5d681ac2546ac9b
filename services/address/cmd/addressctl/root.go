package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Uebook/Luna-sub002/pkg/database"
	"github.com/Uebook/Luna-sub002/pkg/logger"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
	"github.com/Uebook/Luna-sub002/services/address/internal/event"
	sqliterepo "github.com/Uebook/Luna-sub002/services/address/internal/repository/sqlite"
	"github.com/Uebook/Luna-sub002/services/address/internal/service"
	"github.com/Uebook/Luna-sub002/services/address/migrations"
)

const defaultOwner = "local"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	dbPath   string
	owner    string
	logLevel string
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "addressctl",
		Short:        "Manage a local address book",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = logger.NewWithFormat("addressctl", opts.logLevel, logger.FormatText, cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "luna.db", "SQLite database file")
	cmd.PersistentFlags().StringVar(&opts.owner, "owner", defaultOwner, "Address book owner")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newUpdateCmd(opts),
		newRemoveCmd(opts),
		newPrimaryCmd(opts),
		newImportCmd(opts),
		newTokenCmd(opts),
	)

	return cmd
}

// withService opens the database, runs fn against an address service and
// closes the database again.
func (o *rootOptions) withService(ctx context.Context, fn func(*service.AddressService) error) error {
	db, err := database.OpenSQLite(ctx, database.DefaultSQLiteConfig(o.dbPath), o.logger)
	if err != nil {
		return err
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			o.logger.Warn("close database", slog.String("error", err.Error()))
		}
	}(db)

	if err := database.RunSQLiteMigrations(ctx, db, migrations.SQLite(), o.logger); err != nil {
		return fmt.Errorf("migrate %s: %w", o.dbPath, err)
	}

	store := service.NewStore(sqliterepo.NewAddressBookRepository(db), o.logger)
	return fn(service.NewAddressService(store, event.Nop{}, o.logger))
}

// printBook writes the address list as indented JSON. A book whose write
// failed is still printed, after a warning on stderr.
func printBook(cmd *cobra.Command, book *domain.AddressBook, err error) error {
	if err != nil {
		if book == nil || !errors.Is(err, service.ErrNotPersisted) {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: change was not saved:", err)
	}
	return writeJSON(cmd.OutOrStdout(), book.Addresses)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readFile reads path, or stdin when path is "-".
func readFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
