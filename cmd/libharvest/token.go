package main

import (
	"strings"

	"github.com/spf13/cobra"

	"libharvest/pkg/config"
	"libharvest/pkg/token"
	"libharvest/pkg/ui"
)

// tokenCmd groups token management subcommands
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored bot-protection token",
	Long: `Inspect, set or clear the access token used for native image downloads.

The token is normally captured interactively during a harvest; these
commands exist for scripting and troubleshooting.`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <value>",
	Short: "Store a token value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := tokenStore()
		if err != nil {
			return err
		}

		t := &token.Token{
			Name:   cfg.Token.CookieName,
			Value:  strings.TrimSpace(args[0]),
			Domain: cfg.CookieDomain(),
		}
		if err := store.Save(t); err != nil {
			return err
		}

		ui.PrintSuccess("Token stored")
		ui.PrintInfo("Location", tokenStorePath(cfg))
		return nil
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored token (masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := tokenStore()
		if err != nil {
			return err
		}

		t, err := store.Load()
		if err != nil {
			return err
		}
		if t == nil {
			ui.PrintWarning("No token stored")
			return nil
		}

		ui.PrintInfo("Cookie", t.Name)
		ui.PrintInfo("Domain", t.Domain)
		ui.PrintInfo("Value", maskToken(t.Value))
		ui.PrintInfo("Location", tokenStorePath(cfg))
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := tokenStore()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		if kr, err := token.NewKeyringStore(); err == nil {
			_ = kr.Clear()
		}
		ui.PrintSuccess("Token cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenShowCmd, tokenClearCmd)
}

// tokenStore loads config and opens the configured token store.
func tokenStore() (*config.Config, token.Store, error) {
	flags := map[string]interface{}{}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return nil, nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, nil, err
	}
	cfg.MergeCommandLineFlags(flags)

	if cfg.Token.Storage == "encrypted" {
		store, err := token.NewEncryptedFileStore(cfg.Token.File + ".enc")
		if err != nil {
			return nil, nil, err
		}
		return cfg, store, nil
	}
	return cfg, token.NewFileStore(cfg.Token.File, cfg.Token.CookieName), nil
}

// maskToken masks all but the edges of a token value
func maskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
