package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/diceledger/internal/config"
	"github.com/MarcoPoloResearchLab/diceledger/internal/database"
	"github.com/MarcoPoloResearchLab/diceledger/internal/logging"
	"github.com/MarcoPoloResearchLab/diceledger/internal/rolls"
	"github.com/MarcoPoloResearchLab/diceledger/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
	resetDB bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "diceledger-api",
		Short: "Dice roll ledger backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	initDBCmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the schema and seed die types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDatabase(cmd.Context())
		},
	}
	initDBCmd.Flags().BoolVar(&resetDB, "reset", false, "Drop every table before recreating the schema")

	setupFlags(rootCmd)
	rootCmd.AddCommand(initDBCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("http.allowed_origins"), "CORS allowed origins")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (postgres, sqlite)")
	cmd.PersistentFlags().String("database-url", "", "Postgres connection string (overrides DATABASE_URL)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Duration("request-timeout", defaults.GetDuration("rolls.request_timeout"), "Datastore request timeout")
	cmd.PersistentFlags().Duration("retry-backoff", defaults.GetDuration("rolls.retry_backoff"), "Delay before retrying a transient datastore failure")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.url", "database-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "rolls.request_timeout", "request-timeout")
	bindFlag(cmd, "rolls.retry_backoff", "retry-backoff")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotenv(config.DotenvFiles...); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func openDatabase(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	return database.Open(ctx, database.Config{
		Driver: appConfig.DatabaseDriver,
		URL:    appConfig.DatabaseURL,
		Path:   appConfig.DatabasePath,
	}, logger)
}

func runInitDatabase(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := openDatabase(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if resetDB {
		if err := database.Reset(ctx, db, logger); err != nil {
			return err
		}
		if err := database.Prepare(ctx, db, logger); err != nil {
			return err
		}
	}

	dieTypes, err := rolls.SeedDieTypes(ctx, db)
	if err != nil {
		return err
	}
	for _, dieType := range dieTypes {
		logger.Info("die type ready",
			zap.String("code", dieType.Code),
			zap.String("name", dieType.Name),
			zap.Int("sides", dieType.Sides))
	}
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

	db, err := openDatabase(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rollService, err := rolls.NewService(rolls.ServiceConfig{
		Database:       db,
		Roller:         rolls.NewCryptoRoller(),
		Clock:          time.Now,
		Logger:         logger,
		RequestTimeout: appConfig.RequestTimeout,
		RetryBackoff:   appConfig.RetryBackoff,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		RollService:    rollService,
		Realtime:       server.NewRealtimeDispatcher(),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
