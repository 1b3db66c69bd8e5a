// Package cli implements the fmquery command line tool.
package cli

import (
	"context"
	"io"

	"github.com/filemakergo/fmorm"
	"github.com/filemakergo/fmorm/internal/config"
	"github.com/filemakergo/fmorm/pkg/logger"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

// Opener connects to the database described by cfg.
type Opener func(ctx context.Context, cfg *config.Config) (*fmorm.DB, error)

// OpenHTTP opens a Data API session.
func OpenHTTP(ctx context.Context, cfg *config.Config) (*fmorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return fmorm.FromConfig(ctx, &cfg.Config)
}

// app is the state shared by all commands of one invocation.
type app struct {
	open    Opener
	cfgFile string
	layout  string
	key     string
	portals []string

	cfg  *config.Config
	logs *logger.LogData
	db   *fmorm.DB
}

// Run executes fmquery with args and closes the session afterwards. A nil open
// connects over HTTP.
func Run(ctx context.Context, open Opener, args []string, stdout, stderr io.Writer) error {
	root, a := newRootCmd(open)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.teardown(ctx); err == nil {
		err = cerr
	}
	return err
}

// NewRootCmd returns the fmquery root command. The caller owns the session the
// commands open; use Run to have it closed.
func NewRootCmd(open Opener) *cobra.Command {
	root, _ := newRootCmd(open)
	return root
}

func newRootCmd(open Opener) (*cobra.Command, *app) {
	if open == nil {
		open = OpenHTTP
	}
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "fmquery",
		Short: "Query and edit FileMaker records through the Data API",
		Long: `fmquery runs finds, reads and deletes against a FileMaker layout.

Connection settings are read from fmorm.yaml, FMORM_ environment variables
and the flags below, in increasing precedence.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./fmorm.yaml)")
	pf.String("host", "", "FileMaker Server URL, e.g. https://fms.example.com")
	pf.String("database", "", "database name")
	pf.String("username", "", "account name")
	pf.String("password", "", "account password")
	pf.String("version", "", "Data API version segment")
	pf.Duration("timeout", 0, "HTTP timeout")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "write logs to this file instead of stderr")
	pf.StringP("output", "o", "", "output format: table or json")
	pf.StringVarP(&a.layout, "layout", "l", "", "layout to query")
	pf.StringVarP(&a.key, "key", "k", "id", "primary key field of the layout")
	pf.StringSliceVarP(&a.portals, "portal", "p", nil, "portal to include with every record (repeatable)")

	root.AddCommand(
		newFindCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	a.logs, err = cfg.BuildLogger()
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.db, err = a.open(cmd.Context(), cfg)
	return err
}

func (a *app) teardown(ctx context.Context) error {
	var err error
	if a.db != nil {
		err = a.db.Close(ctx)
		a.db = nil
	}
	if a.logs != nil {
		if cerr := a.logs.Close(); err == nil {
			err = cerr
		}
		a.logs = nil
	}
	return err
}

// spec describes the layout named on the command line. Every portal becomes a Many
// relation of the same name.
func (a *app) spec() *models.ModelSpec {
	spec := &models.ModelSpec{
		Layout:    a.layout,
		KeyName:   a.key,
		Relations: map[string]models.Relation{},
	}
	for _, p := range a.portals {
		spec.Relations[p] = models.Relation{
			Table:       p,
			Model:       &models.ModelSpec{Layout: p},
			Cardinality: models.Many,
		}
	}
	return spec
}
