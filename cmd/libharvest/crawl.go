package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"libharvest/pkg/collection"
	"libharvest/pkg/config"
	"libharvest/pkg/httpclient"
	"libharvest/pkg/logger"
	"libharvest/pkg/ratelimit"
	"libharvest/pkg/ui"
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl <collection-url>",
	Short: "Discover item URLs without downloading anything",
	Long: `Walk the collection's index pages and print every discovered item URL,
one per line, sorted. No token is needed and nothing is written to disk
except the page cache. Useful for sizing a collection before a harvest or
for feeding the URL list to other tooling.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(args[0])
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(collectionURL string) error {
	flags := map[string]interface{}{
		"collection-url": collectionURL,
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()

	session, err := httpclient.NewSession(&cfg.HTTP, &cfg.Retry, log)
	if err != nil {
		return err
	}

	pacer := ratelimit.NewPacer(cfg.Pace.PageDelayMin, cfg.Pace.PageDelayMax)
	crawler := collection.NewCrawler(session, &cfg.Collection, pacer, nil, log)

	urls, err := crawler.DiscoverItemURLs(context.Background())
	if err != nil {
		ui.PrintError("Discovery failed", err.Error())
		os.Exit(1)
	}

	for _, u := range urls {
		fmt.Println(u)
	}
	return nil
}
