package cli

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fangwd/restup/internal/config"
	"github.com/fangwd/restup/internal/request"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Data string
	File string
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// badInput reports a request that never reached the engine.
func badInput(f *OutputFormatter, err error) error {
	_ = f.Error(ErrCodeBadInput, err.Error(), nil)
	return WrapExitError(ExitCommandError, "invalid request", err)
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Read rows",
		Long: `Read rows the way GET does over HTTP.

Example:
  restup get '/url?status=200&sort:-id&limit:10'
  restup get /url/42
  restup get '/url.id,url?url=http://example.com'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			d, err := request.ParseString(args[0])
			if err != nil {
				return badInput(f, err)
			}
			if d.IsClaim() {
				return badInput(f, errors.New("update: keys claim rows; use restup claim"))
			}

			rt, err := openEngine(contextOf(cmd), cmd, rootOpts, config.Overrides{})
			if err != nil {
				return err
			}
			defer rt.Close()

			rows, err := rt.engine.Get(contextOf(cmd), d)
			if err != nil {
				return f.Fail("get", err)
			}
			f.VerboseLog("%d rows from %s", len(rows), d.Table)
			return f.Rows(rows)
		},
	}
}

// NewClaimCommand creates the claim command.
func NewClaimCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <path>",
		Short: "Claim rows for one worker",
		Long: `Select up to limit: matching rows and update them under the table lock,
so that concurrent claims never return the same row.

Example:
  restup claim '/job?status=0&limit:4&update:status=1&update:worker=w1'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			d, err := request.ParseString(args[0])
			if err != nil {
				return badInput(f, err)
			}
			if !d.IsClaim() {
				return badInput(f, errors.New("claim needs at least one update: key"))
			}

			rt, err := openEngine(contextOf(cmd), cmd, rootOpts, config.Overrides{})
			if err != nil {
				return err
			}
			defer rt.Close()

			rows, err := rt.engine.Claim(contextOf(cmd), d)
			if err != nil {
				return f.Fail("claim", err)
			}
			f.VerboseLog("claimed %d rows from %s", len(rows), d.Table)
			return f.Rows(rows)
		},
	}
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <path>",
		Short: "Write rows",
		Long: `Write a JSON object or array of rows and print the identity of each one.

Rows are matched against each other and against the table by primary key or
unique constraint. Matches are updated and the rest inserted, in one locked
transaction.

With an attached: field, --data is the row and --file is the payload.

Example:
  restup update /url --data '[{"url":"http://a","status":200}]'
  restup update /url --file rows.json
  restup update '/url?attached:response' --data '{"id":3}' --file page.html`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "rows as JSON")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read rows from a file, - for stdin")

	return cmd
}

func runUpdate(opts *UpdateOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	d, err := request.ParseString(path)
	if err != nil {
		return badInput(f, err)
	}
	if d.IsClaim() || d.HasRowID {
		return badInput(f, errors.New("update: and row ids are read-only"))
	}

	body, err := opts.body(cmd, d)
	if err != nil {
		return badInput(f, err)
	}
	if err := d.SetBody(body); err != nil {
		return badInput(f, err)
	}

	rt, err := openEngine(contextOf(cmd), cmd, opts.RootOptions, config.Overrides{})
	if err != nil {
		return err
	}
	defer rt.Close()

	ids, err := rt.engine.Update(contextOf(cmd), d)
	if err != nil {
		return f.Fail("update", err)
	}
	f.VerboseLog("wrote %d rows to %s", len(d.Rows), d.Table)
	return f.IDs(ids)
}

// body assembles the request body from --data and --file.
func (o *UpdateOptions) body(cmd *cobra.Command, d *request.Descriptor) ([]byte, error) {
	if _, _, attached := d.AttachedField(); attached {
		if o.File == "" {
			return nil, errors.New("an attached: field needs --file")
		}
		payload, err := o.readFile(cmd)
		if err != nil {
			return nil, err
		}
		row := o.Data
		if row == "" {
			row = "{}"
		}
		return bytes.Join([][]byte{[]byte(row), payload}, []byte{0}), nil
	}

	switch {
	case o.Data != "" && o.File != "":
		return nil, errors.New("--data and --file are mutually exclusive")
	case o.Data != "":
		return []byte(o.Data), nil
	case o.File != "":
		return o.readFile(cmd)
	}
	return nil, errors.New("rows are required: use --data or --file")
}

func (o *UpdateOptions) readFile(cmd *cobra.Command) ([]byte, error) {
	if o.File == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(o.File)
}
