package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/config"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/database"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/inference"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/photos"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/server"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "platepal-api",
		Short: "PlatePal meal tracking backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	}
	rootCmd.AddCommand(migrateCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL connection string")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().String("inference-provider", defaults.GetString("inference.provider"), "Inference provider (gemini, vertex)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("calendar.timezone"), "IANA timezone used for calendar days")
	cmd.PersistentFlags().String("query-mode", defaults.GetString("entries.query_mode"), "Entry query strategy (indexed, scan)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "inference.provider", "inference-provider")
	bindFlag(cmd, "calendar.timezone", "timezone")
	bindFlag(cmd, "entries.query_mode", "query-mode")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		return viper.ReadInConfig()
	}
	return nil
}

func runMigrations() error {
	dbConfig, err := config.LoadDatabase(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: dbConfig.Driver,
		Path:   dbConfig.Path,
		DSN:    dbConfig.DSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	applied, err := database.AppliedMigrations(db)
	if err != nil {
		return err
	}
	for _, migration := range applied {
		logger.Info("migration recorded",
			zap.String("migration", migration.Name),
			zap.Time("applied_at", migration.AppliedAt))
	}
	logger.Info("migrations applied",
		zap.String("driver", dbConfig.Driver),
		zap.Int("count", len(applied)),
		zap.Bool("entry_day_index", database.HasEntryDayIndex(db)))
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	location, err := appConfig.Location()
	if err != nil {
		return err
	}

	dbConfig := appConfig.Database()
	db, err := database.Open(database.Config{
		Driver: dbConfig.Driver,
		Path:   dbConfig.Path,
		DSN:    dbConfig.DSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	queryMode, err := entries.ParseQueryMode(appConfig.QueryMode)
	if err != nil {
		return err
	}
	if queryMode == entries.QueryModeIndexed && !database.HasEntryDayIndex(db) {
		logger.Warn("entry day index missing, falling back to scan queries",
			zap.String("index", entries.DayIndexName))
		queryMode = entries.QueryModeScan
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		Audience:      appConfig.Audience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	idProvider := entries.NewUUIDProvider()
	entryService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		Calendar:   entries.NewCalendar(location, time.Now),
		IDProvider: idProvider,
		QueryMode:  queryMode,
		Logger:     logger.Named("entries"),
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
	})
	if err != nil {
		return err
	}

	analyzer, err := inference.NewClient(ctx, inference.Config{
		Provider:        appConfig.Inference.Provider,
		APIKey:          appConfig.Inference.APIKey,
		Endpoint:        appConfig.Inference.Endpoint,
		Model:           appConfig.Inference.Model,
		ProjectID:       appConfig.Inference.ProjectID,
		Location:        appConfig.Inference.Location,
		CredentialsFile: appConfig.Inference.CredentialsFile,
		Timeout:         appConfig.Inference.Timeout,
		Temperature:     appConfig.Inference.Temperature,
		MaxOutputTokens: appConfig.Inference.MaxOutputTokens,
		Logger:          logger.Named("inference"),
	})
	if err != nil {
		return err
	}
	defer analyzer.Close() //nolint:errcheck

	var photoArchive server.PhotoArchive
	if appConfig.PhotosBucket != "" {
		archive, err := photos.NewS3Archive(ctx, photos.Config{
			Bucket:        appConfig.PhotosBucket,
			Region:        appConfig.PhotosRegion,
			PublicBaseURL: appConfig.PhotosPublicBaseURL,
		})
		if err != nil {
			return err
		}
		photoArchive = archive
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:      tokenManager,
		Users:             userService,
		Entries:           entryService,
		Analyzer:          analyzer,
		Photos:            photoArchive,
		Realtime:          server.NewRealtimeDispatcher(),
		HeartbeatInterval: appConfig.RealtimeHeartbeat,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("query_mode", string(queryMode)),
			zap.String("inference_provider", appConfig.Inference.Provider),
			zap.Bool("photo_archive", photoArchive != nil))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
