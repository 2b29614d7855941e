// Package main is the command-line client of the AISAC log format recommender.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cisec/aisac-logformat/internal/bootstrap"
	"github.com/cisec/aisac-logformat/internal/cache"
	"github.com/cisec/aisac-logformat/internal/config"
	"github.com/cisec/aisac-logformat/pkg/protocol"
	"github.com/cisec/aisac-logformat/pkg/types"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const maxLineBytes = 1 << 20

// cli holds the persistent flags shared by all subcommands.
type cli struct {
	cfgFile   string
	remoteURL string
	output    string
	logLevel  string

	maxResults    int
	minConfidence float64
	group         string
	vendor        string
	noPartial     bool
	perLine       bool
	showAll       bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := c.rootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "aisac-logformat",
		Short:        "AISAC Log Format Recommender",
		Long:         `Recommends which catalog log formats best parse the given raw log lines.`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&c.cfgFile, "config", "c", "", "config file path")
	pf.StringVar(&c.remoteURL, "remote", "", "use the recommendation service at this URL instead of the local catalog")
	pf.StringVarP(&c.output, "output", "o", outputText, "output format (text, json)")
	pf.StringVarP(&c.logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Commit: ` + commit + `
Build Date: ` + buildDate + "\n")
	rootCmd.SetOut(c.stdout)
	rootCmd.SetErr(c.stderr)

	rootCmd.AddCommand(
		c.recommendCommand(),
		c.batchCommand(),
		c.formatsCommand(),
		c.statsCommand("groups", "Show format counts per group"),
		c.statsCommand("vendors", "Show format counts per vendor"),
		c.validateCommand(),
		c.cacheCommand(),
	)
	return rootCmd
}

func (c *cli) addMatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&c.maxResults, "max-results", "n", 0, "maximum number of recommendations (default from config)")
	f.Float64Var(&c.minConfidence, "min-confidence", 0, "drop recommendations below this confidence")
	f.StringVarP(&c.group, "group", "g", "", "only consider formats of this group")
	f.StringVar(&c.vendor, "vendor", "", "only consider formats of this vendor")
	f.BoolVar(&c.noPartial, "no-partial", false, "only report complete matches")
}

func (c *cli) wireOptions() types.Options {
	opts := types.Options{
		MaxResults:    c.maxResults,
		MinConfidence: c.minConfidence,
		GroupFilter:   c.group,
		VendorFilter:  c.vendor,
	}
	if c.noPartial {
		partial := false
		opts.IncludePartialMatches = &partial
	}
	return opts
}

func (c *cli) recommendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend [line]",
		Short: "Recommend formats for one log line (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := ""
			if len(args) == 1 {
				line = args[0]
			} else {
				lines, err := readLines(c.stdin)
				if err != nil {
					return err
				}
				if len(lines) > 0 {
					line = lines[0]
				}
			}
			if strings.TrimSpace(line) == "" {
				return errors.New("a log line is required")
			}

			return c.withBackend(cmd, func(ctx context.Context, b backend, p *printer) error {
				recs, err := b.Recommend(ctx, line, c.wireOptions())
				if err != nil {
					return err
				}
				return p.recommendations(recs)
			})
		},
	}
	c.addMatchFlags(cmd)
	return cmd
}

func (c *cli) batchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Recommend formats for a file of log lines (stdin when omitted or \"-\")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := c.stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening input: %w", err)
				}
				defer f.Close()
				in = f
			}

			lines, err := readLines(in)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return errors.New("no log lines in input")
			}

			return c.withBackend(cmd, func(ctx context.Context, b backend, p *printer) error {
				resp, err := b.RecommendBatch(ctx, protocol.BatchRequest{
					Lines:   lines,
					Options: c.wireOptions(),
					PerLine: c.perLine,
				})
				if err != nil {
					return err
				}
				return p.batch(resp)
			})
		},
	}
	c.addMatchFlags(cmd)
	cmd.Flags().BoolVar(&c.perLine, "per-line", false, "report each line separately instead of merging")
	return cmd
}

func (c *cli) formatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List catalog formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b backend, p *printer) error {
				formats, err := b.Formats(ctx, c.group)
				if err != nil {
					return err
				}
				return p.formats(formats)
			})
		},
	}
	cmd.Flags().StringVarP(&c.group, "group", "g", "", "only list formats of this group")
	return cmd
}

func (c *cli) statsCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b backend, p *printer) error {
				var (
					counts map[string]int
					err    error
				)
				if name == "groups" {
					counts, err = b.GroupStatistics(ctx)
				} else {
					counts, err = b.VendorStatistics(ctx)
				}
				if err != nil {
					return err
				}
				return p.stats(strings.TrimSuffix(name, "s"), counts)
			})
		},
	}
}

func (c *cli) validateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile every catalog template and test it against its sample log",
		Long: `Compiles every template of the catalog and parses each template's sample log
with it. Compile errors and samples that do not parse are reported as failures;
the command exits non-zero when any template fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b backend, p *printer) error {
				report, err := b.Validate(ctx)
				if err != nil {
					return err
				}
				if err := p.validation(report, c.showAll); err != nil {
					return err
				}
				if !report.OK() {
					return fmt.Errorf("%d templates failed validation", report.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&c.showAll, "all", false, "also list templates that passed")
	return cmd
}

func (c *cli) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persisted catalog cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate",
		Short: "Remove all cache snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig()
			if err != nil {
				return err
			}
			m, err := cache.New(cache.Config{Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL}, logger)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Invalidate(); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "cache invalidated: %s\n", m.Dir())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Re-read the catalog and rewrite the cache snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Cache.Enabled {
				return errors.New("cache is disabled in the configuration")
			}
			app, err := bootstrap.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Cache == nil {
				return errors.New("cache directory is unavailable")
			}
			if err := app.Cache.Rebuild(); err != nil {
				return err
			}
			snap, err := app.Source.Fresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "cache rebuilt: %d formats\n", snap.Catalog.Len())
			return nil
		},
	})
	return cmd
}

// loadConfig loads the configuration and a logger writing to stderr.
func (c *cli) loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	} else if c.cfgFile == "" {
		cfg.Logging.Level = "warn"
	}
	if c.remoteURL != "" {
		cfg.Remote.Enabled = true
		cfg.Remote.URL = c.remoteURL
	}
	logger := bootstrap.NewLogger(c.stderr, cfg.Logging.Level, "console", "aisac-logformat-cli")
	return cfg, logger, nil
}

// withBackend builds the configured backend and runs fn with it.
func (c *cli) withBackend(cmd *cobra.Command, fn func(context.Context, backend, *printer) error) error {
	p, err := newPrinter(c.stdout, c.output)
	if err != nil {
		return err
	}
	cfg, logger, err := c.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var b backend
	if cfg.Remote.Enabled {
		client, err := bootstrap.RemoteClient(cfg, logger)
		if err != nil {
			return err
		}
		b = &remoteBackend{client: client}
	} else {
		app, err := bootstrap.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		b = &localBackend{app: app, defaults: bootstrap.Options(cfg)}
	}
	defer b.Close()

	return fn(ctx, b, p)
}

// readLines returns the non-blank lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return lines, nil
}
