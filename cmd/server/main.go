// Command server runs the Kiro proxy: an OpenAI- and Anthropic-compatible
// HTTP gateway in front of the Kiro/CodeWhisperer API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiroProxyAPI/internal/api"
	"github.com/router-for-me/KiroProxyAPI/internal/api/handlers"
	kiroauth "github.com/router-for-me/KiroProxyAPI/internal/auth/kiro"
	"github.com/router-for-me/KiroProxyAPI/internal/buildinfo"
	"github.com/router-for-me/KiroProxyAPI/internal/config"
	"github.com/router-for-me/KiroProxyAPI/internal/executor"
	"github.com/router-for-me/KiroProxyAPI/internal/logging"
	"github.com/router-for-me/KiroProxyAPI/internal/ratelimit"
	"github.com/router-for-me/KiroProxyAPI/internal/watcher"
)

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("kiro-proxy %s (%s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	_ = godotenv.Load()
	logging.SetupBaseLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, "logs"); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}
	log.Infof("starting kiro-proxy %s", buildinfo.Version)

	tokens, stopRefresh := buildTokenSource(cfg)
	defer stopRefresh()

	exec := executor.New(tokens, cfg)
	h := handlers.New(exec, tokens, cfg)
	limiter := ratelimit.New(cfg.RateLimitRPM)
	router := api.NewRouter(h, cfg, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.CredsFile != "" {
		if mgr, ok := tokens.(*kiroauth.Manager); ok {
			if err := watcher.WatchCredentials(ctx, cfg.CredsFile, mgr); err != nil {
				log.WithField("error", err).Warn("credentials watcher not started")
			}
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Error("server shutdown failed")
	}
	log.Info("server stopped")
}

// buildTokenSource picks pool mode when multiple refresh tokens are
// configured, otherwise a single-credential manager backed by the
// configured store. The returned stop function halts background refresh.
func buildTokenSource(cfg *config.Config) (kiroauth.TokenSource, func()) {
	if poolTokens := cfg.PoolTokens(); len(poolTokens) > 1 {
		pool := kiroauth.NewPool(poolTokens, cfg.ProfileArn, cfg.Region, cfg.TokenRefreshThreshold)
		pool.StartBackgroundRefresh(cfg.BackgroundRefreshInterval)
		return pool, pool.StopBackgroundRefresh
	}

	refreshToken := cfg.RefreshToken
	if poolTokens := cfg.PoolTokens(); len(poolTokens) == 1 {
		refreshToken = poolTokens[0]
	}
	mgr := kiroauth.NewManager(kiroauth.ManagerOptions{
		RefreshToken:     refreshToken,
		ProfileArn:       cfg.ProfileArn,
		Region:           cfg.Region,
		CredsFile:        cfg.CredsFile,
		SQLiteDB:         cfg.SQLiteDB,
		RefreshThreshold: cfg.TokenRefreshThreshold,
	})
	mgr.StartBackgroundRefresh(cfg.BackgroundRefreshInterval)
	return mgr, mgr.StopBackgroundRefresh
}
