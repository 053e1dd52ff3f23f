package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aryasuneesh/feature-discovery/internal/api"
	"github.com/aryasuneesh/feature-discovery/internal/config"
	"github.com/aryasuneesh/feature-discovery/internal/db"
	"github.com/aryasuneesh/feature-discovery/internal/engine/candidate"
	"github.com/aryasuneesh/feature-discovery/internal/engine/catalog"
	"github.com/aryasuneesh/feature-discovery/internal/engine/contextfact"
	"github.com/aryasuneesh/feature-discovery/internal/engine/history"
	"github.com/aryasuneesh/feature-discovery/internal/engine/recommend"
	"github.com/aryasuneesh/feature-discovery/internal/engine/score"
	"github.com/aryasuneesh/feature-discovery/internal/engine/semantic"
	"github.com/aryasuneesh/feature-discovery/internal/engine/state"
	"github.com/aryasuneesh/feature-discovery/internal/log"
	"github.com/aryasuneesh/feature-discovery/internal/signal"
)

var (
	serveConfigPath  string
	serveListenAddr  string
	serveDBPath      string
	serveCatalogPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recommendation daemon",
	Long: `Run the recommendation daemon.

The daemon serves context submissions, recommendation requests, and
interaction events over HTTP, and persists discovery state and history
in SQLite. SIGHUP reloads the configuration file.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "config file path")
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database path (overrides config)")
	serveCmd.Flags().StringVar(&serveCatalogPath, "catalog", "", "feature catalog YAML path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.NewFromEnv()

	manager := config.NewManager(config.ManagerOptions{
		Path:   serveConfigPath,
		Logger: logger,
	})
	if err := manager.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := manager.Get()

	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}
	if serveDBPath != "" {
		cfg.DBPath = serveDBPath
	}
	if serveCatalogPath != "" {
		cfg.CatalogPath = serveCatalogPath
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := db.Open(ctx, db.Options{
		Logger: logger,
		Path:   cfg.DBPath,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	hist, err := history.NewStore(database.DB(), history.Options{Tau: cfg.PopularityTau})
	if err != nil {
		return fmt.Errorf("failed to init history store: %w", err)
	}
	defer hist.Close()

	stateStore, err := state.NewStore(database.DB())
	if err != nil {
		return fmt.Errorf("failed to init state store: %w", err)
	}
	defer stateStore.Close()

	tracker := state.NewTracker(stateStore, state.Backoff{
		Base:             cfg.Cooldown.Base,
		Factor:           cfg.Cooldown.Factor,
		Max:              cfg.Cooldown.Max,
		DismissExtension: cfg.Cooldown.DismissExtension,
	}, logger)

	var similarity semantic.Similarity
	if cfg.SemanticEndpoint != "" {
		similarity = semantic.NewCached(semantic.NewHTTPClient(cfg.SemanticEndpoint), semantic.CachedOptions{
			Timeout:   cfg.SemanticTimeout,
			CacheSize: cfg.SemanticCacheSize,
			Logger:    logger,
		})
	}

	window := contextfact.NewWindow(cfg.WindowSize)
	generator := candidate.NewGenerator(cat, candidate.Options{
		EnforcePrerequisites: cfg.Prerequisites(),
		ExplorationQuota:     cfg.ExplorationQuota,
	})
	scorer := score.NewScorer(score.Weights{
		ContextMatch: cfg.Weights.ContextMatch,
		Popularity:   cfg.Weights.Popularity,
		Novelty:      cfg.Weights.Novelty,
		Semantic:     cfg.Weights.Semantic,
	}, similarity)

	engine := recommend.New(cat, window, hist, tracker, generator, scorer, recommend.Options{
		TopK:             cfg.TopK,
		DiversityCap:     cfg.DiversityCap,
		HistoryLookback:  cfg.HistoryLookback,
		HistoryMaxEvents: cfg.HistoryMaxEvents,
	}, logger)

	handler := api.NewHandler(engine, logger)
	handler.DBCheck = database.Validate
	handler.SemanticConfigured = similarity != nil
	server := api.NewServer(cfg.ListenAddr, handler, logger)

	ctx, sigHandler := signal.Setup(ctx, &signal.Config{
		Logger: logger,
		ReloadFn: func() error {
			if err := manager.Reload(); err != nil {
				return err
			}
			if path := manager.Get().CatalogPath; path != "" {
				features, err := catalog.LoadFile(path)
				if err != nil {
					return err
				}
				return cat.Replace(features.ListFeatures())
			}
			return nil
		},
		ShutdownFn: server.Shutdown,
	})
	defer sigHandler.Stop()

	schemaVersion, _ := database.Version(ctx)
	log.LogStartup(logger, log.StartupInfo{
		Version:       Version,
		ConfigPath:    manager.Path(),
		CatalogPath:   cfg.CatalogPath,
		DatabasePath:  database.Path(),
		SchemaVersion: schemaVersion,
		ListenAddr:    cfg.ListenAddr,
		PID:           os.Getpid(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	sigHandler.Wait()
	log.LogShutdown(logger, "signal")
	return nil
}

// loadCatalog reads the catalog file, or starts empty when no path is
// configured. An empty catalog serves empty recommendation lists.
func loadCatalog(path string) (*catalog.Static, error) {
	if path == "" {
		return catalog.NewStatic(nil)
	}
	return catalog.LoadFile(path)
}
