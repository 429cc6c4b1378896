package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/fangwd/restup/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Overrides are the --driver, --dsn and --schema flags.
	Overrides config.Overrides
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the restup CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "restup",
		Short: "restup - batched upserts and claims over SQL tables",
		Long: `restup serves rows of an existing SQLite or MySQL database over HTTP.

Writes are batches of rows that are matched against each other and against
the stored rows by primary key or unique constraint, then committed as one
locked transaction. Claims hand rows to exactly one worker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ./"+config.FileName+" if present)")
	flags.StringVar(&opts.Overrides.Driver, "driver", "", "database driver (sqlite3|mysql)")
	flags.StringVar(&opts.Overrides.DSN, "dsn", "", "database DSN or SQLite file path")
	flags.StringVar(&opts.Overrides.Schema, "schema", "", "schema file; the live database is introspected when empty")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewClaimCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}
