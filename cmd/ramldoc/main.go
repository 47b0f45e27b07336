package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourorg/ramldoc/internal/catalog"
	"github.com/yourorg/ramldoc/internal/config"
	"github.com/yourorg/ramldoc/internal/filter"
	"github.com/yourorg/ramldoc/internal/fragment"
	"github.com/yourorg/ramldoc/internal/generator"
	"github.com/yourorg/ramldoc/internal/har"
	"github.com/yourorg/ramldoc/internal/server"
	"github.com/yourorg/ramldoc/internal/store"
	"github.com/yourorg/ramldoc/pkg/types"
)

const defaultConfigContent = `output:
  dir: "./build/generated-snippets"
  verify_examples: false

validation:
  relaxed_request: false
  relaxed_response: false

filter:
  ignore_extensions:
    - .js
    - .css
    - .png
    - .jpg
    - .gif
    - .svg
    - .woff
    - .woff2
    - .ico
    - .map
  ignore_content_types:
    - text/html
    - text/css
    - image/*
    - font/*
    - application/javascript
  ignore_paths:
    - /static/
    - /assets/
    - /favicon

server:
  host: "127.0.0.1"
  port: 3000

log:
  level: "info"

workers: 4
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globals struct {
	cfgPath string
	debug   bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "ramldoc",
		Short:         "Generate RAML snippets from recorded API traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug output")

	root.AddCommand(newInitCmd())
	root.AddCommand(newDocumentCmd(g))
	root.AddCommand(newServeCmd(g))
	root.AddCommand(newListCmd(g))
	root.AddCommand(newShowCmd(g))
	root.AddCommand(newDeleteCmd(g))

	return root
}

// env is what every command past init needs.
type env struct {
	cfg    *config.Config
	store  *store.SQLiteStore
	logger *slog.Logger
}

func (g *globals) open(stderr io.Writer) (*env, error) {
	cfg, err := config.Load(g.cfgPath)
	if err != nil {
		return nil, err
	}
	if g.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, err
	}
	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, store: s, logger: logger}, nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.ramldoc directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".ramldoc")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "ramldoc.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			return nil
		},
	}
}

func newDocumentCmd(g *globals) *cobra.Command {
	var harPath, catalogPath, runID, title string
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Document the operations of a HAR recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.store.Close()

			exs, err := har.Parse(harPath)
			if err != nil {
				return fmt.Errorf("parse har: %w", err)
			}
			exs = filter.Apply(exs, e.cfg.Filter)

			var entries []generator.Entry
			if catalogPath != "" {
				cat, err := catalog.Load(catalogPath)
				if err != nil {
					return err
				}
				if title == "" {
					title = cat.Title
				}
				b := cat.Bind(exs, e.cfg.Validation)
				for _, name := range b.Missing {
					e.logger.Warn("catalog operation not recorded", "operation", name)
				}
				if len(b.Unmatched) > 0 {
					e.logger.Info("recordings without catalog entry skipped", "count", len(b.Unmatched))
				}
				entries = b.Entries
			} else {
				har.AssignNames(exs)
				for _, ex := range exs {
					entries = append(entries, generator.Entry{Operation: ex.Operation, Parameters: defaultParameters(e.cfg)})
				}
			}
			if len(entries) == 0 {
				return errors.New("nothing to document")
			}

			if runID == "" {
				run, err := e.store.CreateRun("har", title, e.cfg.Output.Dir)
				if err != nil {
					return err
				}
				runID = run.ID
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			doc := generator.New(e.cfg, e.store, e.logger)
			res, err := doc.DocumentAll(ctx, runID, entries, func(stage string) {
				fmt.Fprintln(cmd.ErrOrStderr(), stage)
			})
			if err != nil {
				return err
			}

			var size uint64
			for _, out := range res.Outputs {
				for _, f := range out.Files {
					size += uint64(len(f.Data))
				}
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "run %s: documented %d operations (%s) into %s\n", runID, len(res.Outputs), humanize.Bytes(size), e.cfg.Output.Dir)
			for _, f := range res.Failures {
				fmt.Fprintf(w, "  failed %s: %v\n", f.Operation, f.Err)
			}
			if len(res.Failures) > 0 {
				return fmt.Errorf("%d operations failed", len(res.Failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&harPath, "har", "", "HAR file path")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "descriptor catalog (YAML)")
	cmd.Flags().StringVar(&runID, "run", "", "add to an existing run")
	cmd.Flags().StringVar(&title, "title", "", "run title")
	_ = cmd.MarkFlagRequired("har")
	return cmd
}

func newServeCmd(g *globals) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{Use: "serve", Short: "Start HTTP service", RunE: func(cmd *cobra.Command, args []string) error {
		e, err := g.open(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.store.Close()
		if cmd.Flags().Changed("host") {
			e.cfg.Server.Host = host
		}
		if cmd.Flags().Changed("port") {
			e.cfg.Server.Port = port
		}
		srv, err := server.New(e.cfg, e.store, e.logger)
		if err != nil {
			return err
		}
		addr := net.JoinHostPort(e.cfg.Server.Host, strconv.Itoa(e.cfg.Server.Port))
		e.logger.Info("listening", "addr", addr, "snippets", e.cfg.Output.Dir)
		return srv.ListenAndServe(addr)
	}}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	return cmd
}

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{Use: "list", Short: "List documentation runs", RunE: func(cmd *cobra.Command, args []string) error {
		e, err := g.open(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.store.Close()
		runs, err := e.store.ListRuns()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tFRAGMENTS\tTITLE\tUPDATED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Status, r.FragmentCount, r.Title, humanize.Time(r.UpdatedAt))
		}
		return tw.Flush()
	}}
}

func newShowCmd(g *globals) *cobra.Command {
	var runID string
	cmd := &cobra.Command{Use: "show", Short: "Print the merged fragments of a run", RunE: func(cmd *cobra.Command, args []string) error {
		e, err := g.open(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.store.Close()
		run, err := e.store.GetRun(runID)
		if err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		resources, err := e.store.ListResources(run.ID)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# run %s (%s), %d fragments\n", run.ID, run.Status, run.FragmentCount)
		for _, res := range resources {
			raml, err := fragment.Render(res, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\n# %s\n%s", res.Path, raml)
		}
		return nil
	}}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newDeleteCmd(g *globals) *cobra.Command {
	var runID string
	cmd := &cobra.Command{Use: "delete", Short: "Delete a run and its stored fragments", RunE: func(cmd *cobra.Command, args []string) error {
		e, err := g.open(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.store.Close()
		if _, err := e.store.GetRun(runID); err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		if err := e.store.DeleteRun(runID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", runID)
		return nil
	}}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func defaultParameters(cfg *config.Config) types.Parameters {
	return types.Parameters{
		RelaxedRequest:  cfg.Validation.RelaxedRequest,
		RelaxedResponse: cfg.Validation.RelaxedResponse,
	}
}
