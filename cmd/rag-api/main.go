package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modular-rag/backend/internal/auth"
	"github.com/modular-rag/backend/internal/config"
	"github.com/modular-rag/backend/internal/database"
	"github.com/modular-rag/backend/internal/logging"
	"github.com/modular-rag/backend/internal/provider"
	"github.com/modular-rag/backend/internal/server"
	"github.com/modular-rag/backend/internal/tokenstore"
	"github.com/modular-rag/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rag-api",
		Short: "Modular-RAG backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the token store")
	cmd.PersistentFlags().Int("access-ttl-minutes", defaults.GetInt("token.access_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().Int("refresh-ttl-days", defaults.GetInt("token.refresh_ttl_days"), "Refresh token TTL in days")
	cmd.PersistentFlags().Int("preemptive-refresh-minutes", defaults.GetInt("token.preemptive_refresh_minutes"), "Preemptive refresh threshold in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-key", "", "Token signing key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "token.access_ttl_minutes", "access-ttl-minutes")
	bindFlag(cmd, "token.refresh_ttl_days", "refresh-ttl-days")
	bindFlag(cmd, "token.preemptive_refresh_minutes", "preemptive-refresh-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.signing_key", "signing-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	redisClient, err := tokenstore.Dial(ctx, appConfig.RedisAddress)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	store, err := tokenstore.New(tokenstore.Config{
		Client:     redisClient,
		AccessTTL:  appConfig.AccessTTL,
		RefreshTTL: appConfig.RefreshTTL,
	})
	if err != nil {
		return err
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningKey: []byte(appConfig.SigningKey),
		Algorithm:  appConfig.SigningAlgorithm,
	})
	if err != nil {
		return err
	}

	directory, err := users.NewDirectory(users.DirectoryConfig{Database: db})
	if err != nil {
		return err
	}

	adapters, err := buildAdapters(appConfig)
	if err != nil {
		return err
	}

	flow, err := auth.NewFlow(auth.FlowConfig{
		Adapters:   adapters,
		Issuer:     issuer,
		Store:      store,
		Directory:  directory,
		AccessTTL:  appConfig.AccessTTL,
		RefreshTTL: appConfig.RefreshTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	gate, err := auth.NewGate(auth.GateConfig{
		Issuer:           issuer,
		Store:            store,
		Directory:        directory,
		AccessTTL:        appConfig.AccessTTL,
		RefreshTTL:       appConfig.RefreshTTL,
		RefreshThreshold: appConfig.RefreshThreshold,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Flow:           flow,
		Gate:           gate,
		Users:          directory,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
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

func buildAdapters(appConfig config.AppConfig) (auth.Adapters, error) {
	google, err := provider.NewGoogleAdapter(provider.GoogleConfig{
		Credentials: provider.Credentials(appConfig.Google),
	})
	if err != nil {
		return auth.Adapters{}, err
	}
	kakao, err := provider.NewKakaoAdapter(provider.KakaoConfig{
		Credentials: provider.Credentials(appConfig.Kakao),
	})
	if err != nil {
		return auth.Adapters{}, err
	}
	naver, err := provider.NewNaverAdapter(provider.NaverConfig{
		Credentials: provider.Credentials(appConfig.Naver),
	})
	if err != nil {
		return auth.Adapters{}, err
	}
	return auth.Adapters{Google: google, Kakao: kakao, Naver: naver}, nil
}
