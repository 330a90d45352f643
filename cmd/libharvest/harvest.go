package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"libharvest/pkg/collection"
	"libharvest/pkg/config"
	"libharvest/pkg/harvester"
	"libharvest/pkg/httpclient"
	"libharvest/pkg/logger"
	"libharvest/pkg/metrics"
	"libharvest/pkg/ratelimit"
	"libharvest/pkg/storage"
	"libharvest/pkg/token"
	"libharvest/pkg/ui"
)

var (
	// Harvest command flags
	outputDir   string
	tokenFile   string
	tokenValue  string
	rateLimit   int
	maxRetries  int
	metricsAddr string
	noCache     bool
	assumeYes   bool
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest <collection-url>",
	Short: "Harvest a collection: metadata, links and all image derivatives",
	Long: `Walk every index page of the collection, parse each item page, and
download the native, medium and thumbnail image for every item.

Items whose native image already exists and validates are skipped without a
single request, so re-running after an interruption only does the remaining
work. The native download needs a bot-protection token; you will be prompted
for one the first time and again whenever the origin rejects it.`,
	Example: `  # Harvest a collection with default settings
  libharvest harvest https://digital.example.org/aerial/

  # Custom output directory and slower pace
  libharvest harvest https://digital.example.org/aerial/ --output ./aerial --requests-per-minute 30

  # Provide the token up front and expose Prometheus metrics
  libharvest harvest https://digital.example.org/aerial/ --token "$WAF_TOKEN" --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runHarvest(args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default ./output)")
	harvestCmd.Flags().StringVar(&tokenFile, "token-file", "", "persisted token record path (default browser_cookies.json)")
	harvestCmd.Flags().StringVar(&tokenValue, "token", "", "access token value, skips the interactive prompt")
	harvestCmd.Flags().IntVar(&rateLimit, "requests-per-minute", 60, "hard cap on requests per minute")
	harvestCmd.Flags().IntVar(&maxRetries, "max-retries", 5, "maximum automatic retry attempts for transient faults")
	harvestCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	harvestCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the on-disk page cache")
	harvestCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt before downloading")
}

func runHarvest(collectionURL string) {
	ui.PrintLogo()
	ui.PrintInfo("Collection", collectionURL)

	flags := map[string]interface{}{
		"collection-url": collectionURL,
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if tokenFile != "" {
		flags["token-file"] = tokenFile
	}
	if rateLimit != 60 {
		flags["requests-per-minute"] = rateLimit
	}
	if maxRetries != 5 {
		flags["max-retries"] = maxRetries
	}
	if metricsAddr != "" {
		flags["metrics-addr"] = metricsAddr
	}
	if noCache {
		flags["no-cache"] = true
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("libharvest starting")

	session, err := httpclient.NewSession(&cfg.HTTP, &cfg.Retry, log)
	if err != nil {
		ui.PrintError("Failed to create HTTP session", err.Error())
		os.Exit(1)
	}

	authority, err := buildAuthority(cfg, session, log)
	if err != nil {
		ui.PrintError("Failed to set up token storage", err.Error())
		os.Exit(1)
	}

	var mtr *metrics.Metrics
	if cfg.Metrics.Enabled {
		mtr = metrics.New()
		go serveMetrics(cfg.Metrics.ListenAddr, mtr, log)
	}

	store := storage.NewManager(&cfg.Output, log)
	pagePacer := ratelimit.NewPacer(cfg.Pace.PageDelayMin, cfg.Pace.PageDelayMax)
	itemPacer := ratelimit.NewPacer(cfg.Pace.ItemDelayMin, cfg.Pace.ItemDelayMax)
	crawler := collection.NewCrawler(session, &cfg.Collection, pagePacer, mtr, log)
	parser := collection.NewParser(session, log)
	engine := harvester.NewEngine(parser, store, session, mtr, log)
	runner := harvester.NewRunner(crawler, engine, store, authority, itemPacer, mtr, log)
	if !assumeYes && term.IsTerminal(int(os.Stdin.Fd())) {
		runner.Confirm = confirmHarvest
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintHighlight("[STARTING HARVEST]")

	summary, err := runner.Run(ctx)
	if err != nil {
		log.WithError(err).Error("Harvest failed")
		ui.PrintError("HARVEST FAILED", err.Error())
		os.Exit(1)
	}

	ui.PrintSummary(summary)
	if summary.Interrupted {
		ui.PrintWarning("[HARVEST INTERRUPTED]")
		return
	}
	ui.PrintSuccess("[HARVEST COMPLETED]")
}

// buildAuthority assembles the token source, stores and authority per config.
func buildAuthority(cfg *config.Config, session *httpclient.Session, log logger.Logger) (*token.Authority, error) {
	var store token.Store
	if cfg.Token.Storage == "encrypted" {
		enc, err := token.NewEncryptedFileStore(cfg.Token.File + ".enc")
		if err != nil {
			return nil, err
		}
		store = enc
	} else {
		store = token.NewFileStore(cfg.Token.File, cfg.Token.CookieName)
	}

	var mirrors []token.Store
	if cfg.Token.UseKeyring {
		if kr, err := token.NewKeyringStore(); err == nil {
			mirrors = append(mirrors, kr)
		} else {
			log.WithError(err).Debug("keyring unavailable, token mirrored to file only")
		}
	}

	var source token.Source
	if tokenValue != "" {
		source = &token.StaticSource{Token: token.Token{
			Name:   cfg.Token.CookieName,
			Value:  tokenValue,
			Domain: cfg.CookieDomain(),
		}}
	} else {
		source = token.NewPromptSource(cfg.Token.CookieName, cfg.CookieDomain(), cfg.Collection.RootURL)
	}

	return token.NewAuthority(session, source, store, cfg.CookieDomain(), log, mirrors...), nil
}

// confirmHarvest asks the operator to proceed once the amount of remaining
// work is known. Default is yes.
func confirmHarvest(total, remaining int) bool {
	fmt.Printf("Collection has %d items, %d still to acquire. Proceed? [Y/n]: ", total, remaining)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}

// serveMetrics exposes the Prometheus registry over HTTP.
func serveMetrics(addr string, mtr *metrics.Metrics, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mtr.Registry, promhttp.HandlerOpts{}))

	log.WithField("addr", addr).Info("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics endpoint stopped")
	}
}

// tokenStorePath resolves the configured token file to an absolute path for
// display.
func tokenStorePath(cfg *config.Config) string {
	p, err := filepath.Abs(cfg.Token.File)
	if err != nil {
		return cfg.Token.File
	}
	return p
}
