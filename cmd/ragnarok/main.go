// Command ragnarok runs the match engine HTTP service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/adapter"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/auth"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/cache"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/clock"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/config"
	httpapi "github.com/Clash-of-Prodigies/Ragnarok/internal/interfaces/http"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/interfaces/http/handlers"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/metrics"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/persistence"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/registry"
)

const (
	appName = "ragnarok"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time match engine for Clash of Prodigies",
		Version: version,
		Long: `Ragnarok hosts turn-based quiz matches: question scheduling,
answer collection and ruleset-driven grading behind a JSON API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		// Accept snake_case spellings of the flags.
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	adaptersCmd := &cobra.Command{
		Use:   "adapters",
		Short: "List registered match adapters",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range adapter.Names() {
				fmt.Println(name)
			}
		},
	}
	rootCmd.AddCommand(serveCmd, adaptersCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	clk := clock.System{}
	m := metrics.NewRegistry()
	byteCache := cache.New(cfg.Storage.RedisAddr)
	introspector := auth.NewCerberus(
		cfg.Auth.ServiceURL,
		byteCache,
		time.Duration(cfg.Auth.CacheTTLSecs)*time.Second,
	)

	var store persistence.MatchStore
	if cfg.Storage.PostgresDSN != "" {
		pg, err := persistence.NewPostgresStore(cfg.Storage.PostgresDSN, 5*time.Second)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
		log.Info().Msg("using postgres match store")
	} else {
		store = persistence.NewMemoryStore()
		log.Info().Msg("using in-memory match store")
	}

	reg := registry.New()
	restored, err := restoreMatches(context.Background(), store, reg, clk)
	if err != nil {
		log.Warn().Err(err).Msg("failed to restore persisted matches")
	} else if len(restored) > 0 {
		log.Info().Int("matches", len(restored)).Msg("restored persisted matches")
		m.MatchesActive.Set(float64(len(restored)))
	}

	h := handlers.New(reg, introspector, clk, m, store)
	h.Restore(restored)
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		AllowedHosts:   cfg.CORS.AllowedHosts,
		SubmitRPS:      cfg.Server.SubmitRPS,
		SubmitBurst:    cfg.Server.SubmitBurst,
	}, h, m)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// restoreMatches rebuilds registry entries from persisted creation
// documents and returns the records that made it back, so the handlers
// can keep carrying them on later persists. Matches come back in the
// Upcoming state; live progress is not persisted.
func restoreMatches(ctx context.Context, store persistence.MatchStore, reg *registry.Registry, clk clock.Clock) ([]persistence.Record, error) {
	records, err := store.LoadMatches(ctx)
	if err != nil {
		return nil, err
	}
	restored := make([]persistence.Record, 0, len(records))
	for _, rec := range records {
		var params adapter.Params
		if err := json.Unmarshal(rec.Document, &params); err != nil {
			log.Warn().Err(err).Str("match_id", rec.MatchID).Msg("skipping unreadable match record")
			continue
		}
		params.MatchID = rec.MatchID
		m, err := adapter.NewMatch(rec.MatchType, params, clk)
		if err != nil {
			log.Warn().Err(err).Str("match_id", rec.MatchID).Msg("skipping unrestorable match record")
			continue
		}
		if err := reg.Add(m); err != nil {
			log.Warn().Err(err).Str("match_id", rec.MatchID).Msg("skipping duplicate match record")
			continue
		}
		restored = append(restored, rec)
	}
	return restored, nil
}
