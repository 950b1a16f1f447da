// Command ballot is the terminal front end of the voting client: it logs in,
// registers the device as a voter and casts the vote.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"ballotkey.org/internal/config"
	"ballotkey.org/internal/obs"
)

var (
	version = "dev"
	commit  = "none"
)

var flags struct {
	envFiles    []string
	apiURL      string
	storeDriver string
	store       string
	quiet       bool
}

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "ballot",
	Short:         "Authenticate, register as a voter and cast a vote",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flags.quiet {
			obs.SetOutput(io.Discard)
		}
		getenv, err := config.Environment(flags.envFiles...)
		if err != nil {
			return err
		}
		loaded, err := config.Load(getenv)
		if err != nil {
			return err
		}
		if flags.apiURL != "" {
			loaded.APIURL = flags.apiURL
		}
		if flags.storeDriver != "" {
			loaded.StoreDriver = flags.storeDriver
			if flags.store == "" && getenv(config.EnvStore) == "" {
				loaded.Store = config.DefaultStore(loaded.StoreDriver)
			}
		}
		if flags.store != "" {
			loaded.Store = flags.store
		}
		cfg = loaded

		obs.Init()
		obs.SetBuildInfo(version, commit)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return flushMetrics()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to read (default .env)")
	pf.StringVar(&flags.apiURL, "api-url", "", "backend base URL (overrides "+config.EnvAPIURL+")")
	pf.StringVar(&flags.storeDriver, "store-driver", "", "credential store driver: file, sqlite, pgx or memory")
	pf.StringVar(&flags.store, "store", "", "credential store path or DSN")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "discard log output")
}

func flushMetrics() error {
	if cfg.MetricsFile == "" {
		return nil
	}
	if err := obs.WriteTextfile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_ = flushMetrics()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
