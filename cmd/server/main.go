package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/diagram-analyzer/backend/internal/api"
	"github.com/diagram-analyzer/backend/internal/config"
	"github.com/diagram-analyzer/backend/internal/extract"
	"github.com/diagram-analyzer/backend/internal/history"
	"github.com/diagram-analyzer/backend/internal/vision"
	"github.com/diagram-analyzer/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get executable path")
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "DiagramAnalyzer.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.Advanced.LogLevel); err == nil {
		log = log.Level(level)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("failed to create directories")
	}

	registry := extract.NewRegistry()

	prompt, err := vision.LoadPrompt(cfg.Model.PromptFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Model.PromptFile).Msg("failed to load prompt file")
	}
	analyzer := vision.NewAnalyzer(
		vision.NewOpenAICompatClient(cfg.Model.BaseURL, cfg.Model.APIKey),
		vision.Options{
			Model:       cfg.Model.Name,
			Prompt:      prompt,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
		},
		log,
	)

	var store *history.Store
	if cfg.Storage.EnableHistory {
		store, err = history.NewStore(cfg.GetHistoryPath(), log)
		if err != nil {
			log.Warn().Err(err).Msg("history store unavailable, continuing without it")
			store = nil
		} else {
			defer store.Close()
		}
	}

	h := api.NewHandler(registry, analyzer, store, log, cfg.Model.Name, Version)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			return c.Request().URL.Path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.Gzip())

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	h.RegisterRoutes(e)

	if err := web.RegisterStaticRoutes(e); err != nil {
		log.Warn().Err(err).Msg("failed to register static routes")
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("listen", cfg.GetServerAddr()).
		Str("model", cfg.Model.Name).
		Str("config", configPath).
		Msg("diagram analyzer server starting")

	if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
