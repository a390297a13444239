package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/storefront-admin/backend/internal/api"
	"github.com/storefront-admin/backend/internal/boundarymap"
	"github.com/storefront-admin/backend/internal/config"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/logging"
	"github.com/storefront-admin/backend/internal/notify"
	"github.com/storefront-admin/backend/internal/storage"
	"github.com/storefront-admin/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := filepath.Join(filepath.Dir(exePath), config.DefaultFileName)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Advanced)

	if err := run(cfg, configPath); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	store, err := openMapStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	repo := boundarymap.NewRepository(store,
		boundarymap.WithDefaultSnapSize(cfg.Editor.DefaultSnapSize),
		boundarymap.WithOptimisticConcurrency(cfg.Editor.OptimisticConcurrency),
	)
	if n, err := repo.LoadDefaults(ctx, cfg.Storage.DefaultMapsDirectory); err != nil {
		slog.Warn("failed to load default maps", "dir", cfg.Storage.DefaultMapsDirectory, "error", err)
	} else if n > 0 {
		slog.Info("default maps loaded", "count", n)
	}

	assets, err := storage.NewLocalStore(cfg.Storage.AssetsDirectory)
	if err != nil {
		return fmt.Errorf("initializing asset storage: %w", err)
	}
	images, err := imagery.NewLocalProvider(assets, cfg.GetDataDir())
	if err != nil {
		return fmt.Errorf("initializing background provider: %w", err)
	}

	notices := notify.NewRecorder(notify.NewSlogSink(nil))
	var edits *imagery.EditManager
	if cfg.ImageEdit.Endpoint != "" {
		service := imagery.NewHTTPEditService(cfg.ImageEdit.Endpoint, cfg.ImageEditTimeout())
		edits = imagery.NewEditManager(service, images, imagery.ManagerOptions{
			Timeout:           cfg.ImageEditTimeout(),
			RequestsPerMinute: cfg.ImageEdit.RequestsPerMinute,
			Burst:             cfg.ImageEdit.Burst,
			MaxConcurrent:     cfg.ImageEdit.MaxConcurrent,
		})
		go cleanupEditJobs(ctx, edits, time.Duration(cfg.ImageEdit.JobRetentionMins)*time.Minute)
	} else {
		slog.Info("image edit service not configured; edits disabled")
	}

	e := newEcho(cfg, embeddedMode)
	handlers := api.NewHandlers(&api.Dependencies{
		Maps:    repo,
		Assets:  assets,
		Images:  images,
		Edits:   edits,
		Notices: notices,
		Version: Version,
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			slog.Warn("failed to register static routes", "error", err)
		} else {
			slog.Info("serving embedded frontend from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openMapStore(cfg *config.AppConfig) (boundarymap.Store, error) {
	if !cfg.Storage.UseDatabase {
		slog.Warn("database disabled; boundary maps are kept in memory")
		return boundarymap.NewMemoryStore(), nil
	}
	store, err := boundarymap.OpenDuckStore(cfg.Storage.DatabasePath, boundarymap.DuckOptions{
		Threads:     cfg.Advanced.DuckDBThreads,
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening map database: %w", err)
	}
	return store, nil
}

func cleanupEditJobs(ctx context.Context, edits *imagery.EditManager, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := edits.CleanupOldJobs(retention); n > 0 {
				slog.Debug("edit jobs cleaned up", "count", n)
			}
		}
	}
}

func newEcho(cfg *config.AppConfig, embeddedMode bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasPrefix(path, "/api/assets/")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
		},
		ErrorMessage: "Request timeout",
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
		if embeddedMode {
			// In embedded mode, use config settings
			origins := strings.Split(cfg.Server.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
			if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
				origins = []string{"*"}
			}
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: origins,
				AllowMethods: methods,
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			}))
		} else {
			// Development mode - only allow localhost
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{
					"http://localhost:5173", "http://127.0.0.1:5173",
					"http://localhost:3000", "http://127.0.0.1:3000",
				},
				AllowMethods: methods,
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
		}
	}
	return e
}

func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool) {
	mode := "Development"
	if embeddedMode {
		mode = "Embedded"
	}
	edits := "disabled"
	if cfg.ImageEdit.Endpoint != "" {
		edits = cfg.ImageEdit.Endpoint
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Room Boundary Editor Server                     ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-39s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  AI Edits:  %-46s║\n", edits)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
