package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgscrape/internal/checkpoint"
	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/crawler"
	"github.com/nao1215/imgscrape/internal/database"
	"github.com/nao1215/imgscrape/internal/log"
	"github.com/nao1215/imgscrape/internal/render"
	"github.com/nao1215/imgscrape/internal/report"
	"github.com/nao1215/imgscrape/internal/stats"
	"github.com/nao1215/imgscrape/internal/transport"
)

// defaultProgressInterval is how often the crawl command prints progress.
const defaultProgressInterval = 2 * time.Second

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a page or site and download its images",
		Long: `Crawl fetches the given page, extracts image URLs from it and downloads them.

In domain mode (the default) links to pages on the same host are followed
breadth-first up to --depth and --max-pages. With --single only the given
page is processed.

Progress is checkpointed every 10 pages and on Ctrl+C. Running the same
command again resumes from the checkpoint; a completed crawl removes it.

Examples:
  # Download every image of one page
  imgscrape crawl --single https://example.com/gallery

  # Crawl a site two links deep with polite, randomized delays
  imgscrape crawl --depth 2 --stealth https://example.com

  # Only large photos, converted to JPEG and grouped by date
  imgscrape crawl --min-width 800 --convert jpeg --organize by-date https://example.com

  # Write a Markdown summary to a file
  imgscrape crawl --markdown -o report.md https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	f := cmd.Flags()

	// Crawl scope
	f.Bool("single", false, "Process only the given page (single-page mode)")
	f.IntP("depth", "d", config.DefaultMaxDepth, "Maximum link depth from the root page (-1 for unlimited)")
	f.IntP("max-pages", "p", config.DefaultMaxPages, "Maximum number of pages to process (0 for unlimited)")
	f.Bool("no-robots", false, "Ignore robots.txt")
	f.Bool("no-sitemap", false, "Do not seed the crawl from sitemap.xml")

	// Politeness and transport
	f.IntP("concurrency", "n", config.DefaultConcurrency, "Number of concurrent image downloads (1-32)")
	f.Bool("stealth", false, "Randomize delays and send browser-like, rotating headers")
	f.Duration("delay", config.DefaultBaseDelay, "Base politeness delay used in stealth mode")
	f.Float64("rps", 0, "Global request rate limit in requests per second (0 for none)")
	f.DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")
	f.String("user-agent", config.DefaultUserAgent, "User-Agent header when stealth mode is off")
	f.String("proxy", "", "Route requests through a SOCKS5 proxy (host:port)")
	f.Bool("render", false, "Render pages in a headless browser before extraction")

	// Image filters
	f.Int("min-width", 0, "Minimum image width in pixels")
	f.Int("min-height", 0, "Minimum image height in pixels")
	f.Int("max-width", 0, "Maximum image width in pixels")
	f.Int("max-height", 0, "Maximum image height in pixels")
	f.Int("min-size", 0, "Minimum image file size in KB")
	f.Int("max-size", 0, "Maximum image file size in KB")
	f.Bool("keep-thumbnails", false, "Keep images smaller than 200x200 pixels")
	f.Bool("gif", false, "Include GIF images")
	f.String("filter", "", "Regular expression image URLs must match")

	// Output
	f.StringP("out-dir", "O", config.DefaultOutputDir, "Directory for downloaded images")
	f.String("organize", string(config.OrganizeFlat), "Output layout: flat, by-page, by-date or mirrored")
	f.String("convert", "", "Convert images to jpeg, png, gif, bmp or tiff")
	f.IntP("quality", "q", config.DefaultQuality, "JPEG quality used by --convert (1-100)")

	// State
	f.Bool("no-resume", false, "Ignore an existing checkpoint and start over")
	f.Bool("no-db", false, "Do not record the run in the history database")
	f.String("data-dir", config.XDGDataDir(), "Directory for checkpoints and the history database")
	f.StringP("config", "c", "", "Configuration file path (default: .imgscrape in current or home directory)")

	// Report
	f.BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	f.StringP("output", "o", "", "Write report to specified file path (creates directories if needed)")
	f.Duration("progress", defaultProgressInterval, "Progress line interval (0 disables)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closeLog := log.NewLogger(cmd.ErrOrStderr(), log.Options{
		Verbose: getBoolFlag(cmd, "verbose"),
		JSON:    getBoolFlag(cmd, "log-json"),
		Async:   true,
	})
	defer closeLog() //nolint:errcheck // flushing the log sink on exit
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	interval, err := cmd.Flags().GetDuration("progress")
	if err != nil {
		return err
	}
	return runCrawl(ctx, cfg, logger, cmd.ErrOrStderr(), interval)
}

// getBoolFlag reads a flag from the command or the root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	if len(args) > 0 {
		cfg.RootURL = args[0]
	}

	f := cmd.Flags()
	var err error
	getInt := func(name string, dst *int) {
		if err == nil {
			*dst, err = f.GetInt(name)
		}
	}
	getBool := func(name string, dst *bool) {
		if err == nil {
			*dst, err = f.GetBool(name)
		}
	}
	getString := func(name string, dst *string) {
		if err == nil {
			*dst, err = f.GetString(name)
		}
	}
	getDuration := func(name string, dst *time.Duration) {
		if err == nil {
			*dst, err = f.GetDuration(name)
		}
	}

	var single, noRobots, noSitemap, keepThumbs, noResume, noDB bool
	var organize string
	getBool("single", &single)
	getInt("depth", &cfg.MaxDepth)
	getInt("max-pages", &cfg.MaxPages)
	getBool("no-robots", &noRobots)
	getBool("no-sitemap", &noSitemap)
	getInt("concurrency", &cfg.Concurrency)
	getBool("stealth", &cfg.Stealth)
	getDuration("delay", &cfg.BaseDelay)
	getDuration("timeout", &cfg.Timeout)
	getString("user-agent", &cfg.UserAgent)
	getString("proxy", &cfg.ProxyAddress)
	getBool("render", &cfg.RenderJS)
	getInt("min-width", &cfg.MinWidth)
	getInt("min-height", &cfg.MinHeight)
	getInt("max-width", &cfg.MaxWidth)
	getInt("max-height", &cfg.MaxHeight)
	getInt("min-size", &cfg.MinFileSizeKB)
	getInt("max-size", &cfg.MaxFileSizeKB)
	getBool("keep-thumbnails", &keepThumbs)
	getBool("gif", &cfg.IncludeAnimatedGIF)
	getString("filter", &cfg.URLFilter)
	getString("out-dir", &cfg.OutputDir)
	getString("organize", &organize)
	getString("convert", &cfg.ConvertTo)
	getInt("quality", &cfg.Quality)
	getBool("no-resume", &noResume)
	getBool("no-db", &noDB)
	getString("data-dir", &cfg.DataDir)
	getString("config", &cfg.ConfigFilePath)
	getBool("json", &cfg.JSONReport)
	getBool("markdown", &cfg.MarkdownReport)
	getString("output", &cfg.ReportFile)
	if err == nil {
		cfg.RequestsPerSecond, err = f.GetFloat64("rps")
	}
	if err != nil {
		return nil, err
	}

	if single {
		cfg.Mode = config.ModeSinglePage
	}
	cfg.RespectRobots = !noRobots
	cfg.UseSitemap = !noSitemap
	cfg.SkipThumbnails = !keepThumbs
	cfg.Resume = !noResume
	cfg.SaveToDB = !noDB
	cfg.Organize = config.OrganizeMode(organize)
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	// An explicit config path must exist; otherwise a missing file means
	// no site settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	return cfg, nil
}

// runCrawl wires the crawl components, runs the crawl and writes the report.
// Progress lines go to status.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer, progressEvery time.Duration) error {
	if cfg.ProxyAddress != "" {
		if err := transport.CheckProxy(ctx, cfg.ProxyAddress); err != nil {
			return fmt.Errorf("proxy check failed: %w", err)
		}
	}

	collector := stats.NewCollector()
	deps := crawler.Dependencies{
		Stats: collector,
		Store: checkpoint.NewFileStore(cfg.CheckpointDir(), checkpoint.WithLogger(logger)),
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DataDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		deps.History = db
		deps.Recorder = db
		logger.Info("database opened", "path", db.Path())
	}

	if cfg.RenderJS {
		printInfo(status, "Starting headless browser...")
		opts := []render.Option{render.WithTimeout(cfg.RenderTimeout), render.WithLogger(logger)}
		if !cfg.Stealth {
			opts = append(opts, render.WithUserAgent(cfg.UserAgent))
		}
		renderer := render.NewChromeRenderer(ctx, opts...)
		defer renderer.Close()
		if !renderer.Available() {
			printWarn(status, "Headless browser unavailable, using static markup")
		}
		deps.Renderer = renderer
	}

	c, err := crawler.New(cfg, deps, crawler.WithLogger(logger))
	if err != nil {
		return err
	}

	printInfo(status, "Crawling %s (%s mode, run %s)", cfg.RootURL, cfg.Mode, c.RunID())
	stopProgress := startProgress(status, collector, progressEvery)
	res, runErr := c.Run(ctx, cfg.RootURL)
	stopProgress()

	if res == nil {
		return runErr
	}
	fmt.Fprintln(status, progressLine(res.Stats))

	switch res.State {
	case crawler.StateCompleted:
		printDone(status, "Crawl completed in %s", res.Duration().Round(time.Millisecond))
	case crawler.StateInterrupted:
		printWarn(status, "Crawl interrupted; run the same command again to resume")
	}

	if err := outputReport(cfg, &report.Summary{
		Version:    getVersion(),
		Run:        res.Summary(),
		OutputDir:  cfg.OutputDir,
		Checkpoint: res.Checkpoint,
	}); err != nil {
		logger.Error("report failed", "error", err)
	}

	if res.State == crawler.StateFailed {
		return runErr
	}
	return nil
}

// startProgress prints a progress line every interval until the returned
// function is called.
func startProgress(w io.Writer, collector *stats.Collector, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprintln(w, progressLine(collector.Snapshot()))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// reportFormat maps the report flags to a report.Format.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// outputReport writes the summary to the report file or stdout.
func outputReport(cfg *config.Config, s *report.Summary) error {
	output := io.Writer(os.Stdout)
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := report.NewWriter(reportFormat(cfg), output).Write(s)
	return err
}
