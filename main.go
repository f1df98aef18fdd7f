package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"torrent-catalog/config"
	"torrent-catalog/database"
	"torrent-catalog/handlers"
	"torrent-catalog/middleware"
	"torrent-catalog/services"
	"torrent-catalog/torrentinfo"
)

const (
	AppVersion = "1.0.0"
	AppName    = "Torrent Catalog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		inspectPath string
		format      string
		convention  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("torrent-catalog", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to configuration file")
	flagSet.BoolVarP(&showVersion, "version", "v", false, "show version information")
	flagSet.StringVar(&inspectPath, "inspect", "", "parse a .torrent file, print its summary and exit")
	flagSet.StringVar(&format, "format", "text", "output format for --inspect: text, json or cbor")
	flagSet.StringVar(&convention, "convention", "auto", "path convention for --inspect: posix, windows or auto")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		fmt.Println("Validating .torrent catalog with a read-only WebDAV view")
		return nil
	}

	if inspectPath != "" {
		return inspect(inspectPath, format, convention)
	}

	return serve(configPath)
}

func inspect(path, format, convention string) error {
	conv, err := torrentinfo.ParseConvention(convention)
	if err != nil {
		return err
	}

	m, err := torrentinfo.Load(path, torrentinfo.WithConvention(conv))
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", path, err, torrentinfo.KindOf(err))
	}
	return services.NewSummary(m).Write(os.Stdout, format)
}

func serve(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	db, err := database.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	catalog, err := services.NewCatalogService(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("failed to create catalog service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := catalog.Start(ctx); err != nil {
		return fmt.Errorf("failed to start catalog service: %w", err)
	}
	defer catalog.Stop()

	apiHandler := handlers.NewAPIHandler(catalog, cfg.Catalog.MaxUploadSize)
	webdavHandler := handlers.NewWebDAVHandler(catalog, cfg, logger)
	router := setupRouter(apiHandler, webdavHandler, cfg, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("starting "+AppName,
		"version", AppVersion,
		"addr", server.Addr,
		"database", cfg.Database.Driver,
		"webdav", fmt.Sprintf("http://%s:%s/webdav/", cfg.Server.Domain, cfg.Server.Port),
		"auth", cfg.Auth.Enabled)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

func setupRouter(apiHandler *handlers.APIHandler, webdavHandler *handlers.WebDAVHandler, cfg *config.Config, logger *slog.Logger) http.Handler {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, err interface{}) {
		logger.Error("panic recovered", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}))

	router.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if err := database.HealthCheck(); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"version":  AppVersion,
			"database": cfg.Database.Driver,
			"auth":     cfg.Auth.Enabled,
		})
	})

	auth := middleware.AuthMiddleware(cfg)

	api := router.Group("/api")
	{
		api.GET("/torrents", apiHandler.ListTorrents)
		api.GET("/torrents/:id", apiHandler.GetTorrent)
		api.GET("/torrents/:id/files", apiHandler.ListFiles)
		api.GET("/torrents/:id/files/:index/map", apiHandler.MapFile)
		api.GET("/torrents/:id/pieces/:piece", apiHandler.MapPiece)
		api.GET("/torrents/:id/trackers", apiHandler.ListTrackers)
		api.GET("/torrents/:id/torrent", apiHandler.DownloadTorrent)
		api.GET("/stats", apiHandler.GetStats)

		api.POST("/torrents", auth, apiHandler.AddTorrent)
		api.POST("/torrents/:id/reindex", auth, apiHandler.ReindexTorrent)
		api.DELETE("/torrents/:id", auth, apiHandler.RemoveTorrent)
	}

	webdavGroup := router.Group("/webdav")
	webdavGroup.Use(auth)
	{
		webdavGroup.Any("/*path", gin.WrapH(webdavHandler))
		webdavGroup.Handle("PROPFIND", "/*path", gin.WrapH(webdavHandler))
	}

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/webdav/")
	})

	return router
}
