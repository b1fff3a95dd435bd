package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/di"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/export"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/config"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/server"
)

const usage = `usage: marketsignals <command> [flags]

commands:
  load-all      fetch every configured source and upsert the results
  list-markets  print the preconfigured markets
  serve         run the read API
  export        write stored signals to CSV or Parquet
  check         run row-count quality checks against the store
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch args[0] {
	case "load-all":
		return loadAll(args[1:], stdout, stderr)
	case "list-markets":
		listMarkets(stdout)
		return 0
	case "serve":
		return serve(args[1:], stderr)
	case "export":
		return exportSignals(args[1:], stdout, stderr)
	case "check":
		return check(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

type commonFlags struct {
	configPath string
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", envOr("CONFIG_PATH", "config/config.yaml"), "config file path")
	fs.StringVar(&c.logLevel, "log-level", "", "override LOG_LEVEL")
}

// bootstrap loads configuration and wires the application.
func (c *commonFlags) bootstrap(stderr io.Writer) (*server.App, func(), bool) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config load failed: %v\n", err)
		return nil, nil, false
	}
	if c.logLevel != "" {
		cfg.Log.Level = strings.ToLower(c.logLevel)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "invalid --log-level: %v\n", err)
			return nil, nil, false
		}
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "app initialization failed: %v\n", err)
		return nil, nil, false
	}
	return app, cleanup, true
}

func loadAll(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("load-all", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	marketsFlag := fs.String("markets", "", "comma-separated market keys (default: environment or every static market)")
	checkFlag := fs.Bool("check", false, "run quality checks after loading and record load status")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	keys := splitKeys(*marketsFlag)
	if unknown := unknownMarkets(keys); len(unknown) > 0 {
		fmt.Fprintf(stderr, "Unknown market keys: %s\n", strings.Join(unknown, ", "))
		return 2
	}

	app, cleanup, ok := common.bootstrap(stderr)
	if !ok {
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.PushMetrics(context.WithoutCancel(ctx))

	report, err := app.LoadAll(ctx, server.LoadOptions{Markets: keys, Check: *checkFlag})
	if err != nil {
		fmt.Fprintf(stderr, "load-all failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Loaded %d records (run %s)\n", report.Total, report.RunID)
	return 0
}

func listMarkets(stdout io.Writer) {
	for _, m := range models.TargetMarkets {
		series := m.FREDSeriesID
		if series == "" {
			series = "(none)"
		}
		fmt.Fprintf(stdout, "%s: geo=%s:%s name='%s' %s fred_series=%s\n",
			m.Key, m.GeoLevel, m.GeoID, m.GeoName, m.YearLabel(), series)
	}
}

func serve(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	app, cleanup, ok := common.bootstrap(stderr)
	if !ok {
		return 1
	}
	defer cleanup()

	if err := app.Serve(context.Background()); err != nil {
		log.Printf("serve: %v", err)
		return 1
	}
	return 0
}

func exportSignals(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	formatFlag := fs.String("format", "csv", "csv or parquet")
	out := fs.String("out", "", "destination file path")
	market := fs.String("market", "", "market key")
	geoLevel := fs.String("geo-level", "", "geography level")
	geoID := fs.String("geo-id", "", "geography id")
	metric := fs.String("metric", "", "metric name")
	limit := fs.Int("limit", 0, "maximum rows (0 exports every matching row)")
	noHeader := fs.Bool("no-header", false, "omit the CSV header row")
	upload := fs.Bool("upload", false, "copy the file to object storage")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	format, ok := models.ParseExportFormat(*formatFlag)
	if !ok || format == models.FormatJSON {
		fmt.Fprintf(stderr, "Unsupported format '%s'\n", *formatFlag)
		return 2
	}
	if *out == "" {
		fmt.Fprintln(stderr, "--out is required")
		return 2
	}
	if *limit < 0 {
		fmt.Fprintln(stderr, "--limit must not be negative")
		return 2
	}

	filter := models.SignalFilter{GeoLevel: *geoLevel, GeoID: *geoID, Metric: *metric, Limit: *limit}
	if *market != "" {
		m, found := models.FindMarket(*market)
		if !found {
			fmt.Fprintf(stderr, "Unknown market key '%s'\n", *market)
			return 2
		}
		filter = filter.ApplyMarket(m)
	}

	app, cleanup, ok := common.bootstrap(stderr)
	if !ok {
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.PushMetrics(context.WithoutCancel(ctx))

	res, err := app.Export(ctx, export.Request{
		Filter:   filter,
		Format:   format,
		Path:     *out,
		NoHeader: *noHeader,
		Upload:   *upload,
	})
	if err != nil {
		fmt.Fprintf(stderr, "export failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %d rows to %s\n", res.Rows, res.Path)
	if res.URI != "" {
		fmt.Fprintf(stdout, "Uploaded to %s\n", res.URI)
	}
	return 0
}

func check(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	record := fs.Bool("record-status", false, "record load status when checks pass")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	app, cleanup, ok := common.bootstrap(stderr)
	if !ok {
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.PushMetrics(context.WithoutCancel(ctx))

	report, err := app.Check(ctx, *record)
	for _, f := range report.Failures {
		fmt.Fprintln(stderr, f)
	}
	if err != nil {
		if !errors.Is(err, models.ErrQualityCheck) {
			fmt.Fprintf(stderr, "check failed: %v\n", err)
		}
		return 1
	}
	fmt.Fprintf(stdout, "Quality checks passed: %d rows\n", report.Total)
	return 0
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func unknownMarkets(keys []string) []string {
	var unknown []string
	for _, k := range keys {
		if _, ok := models.FindMarket(k); !ok {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
