package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/config"
	"github.com/film4u/film4u-ai/internal/db"
	"github.com/film4u/film4u-ai/internal/guard"
	"github.com/film4u/film4u-ai/internal/history"
	"github.com/film4u/film4u-ai/internal/http/api/admin"
	"github.com/film4u/film4u-ai/internal/http/api/front"
	internalsettings "github.com/film4u/film4u-ai/internal/settings"
	"github.com/film4u/film4u-ai/internal/tmdb"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	settingsRefreshInterval = 30 * time.Second
	guestPruneInterval      = time.Hour
	guestRetention          = 48 * time.Hour
	shutdownTimeout         = 10 * time.Second
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Components holds the wired services behind the HTTP surface.
type Components struct {
	Guard     *guard.Guard
	Assistant *assistant.Service
	Trending  *tmdb.Client
	History   *history.GormStore
	closers   []func() error
}

// Close releases background resources.
func (c *Components) Close() {
	if c == nil {
		return
	}
	for _, closeFn := range c.closers {
		if errClose := closeFn(); errClose != nil {
			log.WithError(errClose).Warn("close component failed")
		}
	}
}

// BuildComponents wires the admission guard and the assistant from configuration.
func BuildComponents(ctx context.Context, conn *gorm.DB, configPath string) (*Components, error) {
	guardCfg, err := config.LoadGuardConfig(configPath)
	if err != nil {
		return nil, err
	}
	base, err := guardSettings(guardCfg)
	if err != nil {
		return nil, err
	}
	provider := guard.NewSettingsProvider(base)

	components := &Components{}
	var guests guard.GuestStore
	switch guardCfg.GuestStore {
	case config.GuestStoreDatabase:
		gormGuests := guard.NewGormGuestStore(conn)
		startGuestPruner(ctx, gormGuests)
		guests = gormGuests
	default:
		manager := guard.NewGuestStoreManager(provider, nil, nil)
		components.closers = append(components.closers, manager.Close)
		guests = manager
	}
	components.Guard = guard.New(provider, guard.SystemClock, guests, guard.NewGormUserStore(conn))

	assistantCfg, err := config.LoadAssistantConfig(configPath)
	if err != nil {
		return nil, err
	}
	tmdbCfg, err := config.LoadTMDBConfig(configPath)
	if err != nil {
		return nil, err
	}

	var completer assistant.Completer
	if assistantCfg.APIKey != "" {
		completer = assistant.NewOpenRouterClient(assistant.OpenRouterOptions{
			APIKey:         assistantCfg.APIKey,
			BaseURL:        assistantCfg.BaseURL,
			Model:          assistantCfg.Model,
			FallbackModels: assistantCfg.FallbackModels,
			Referer:        assistantCfg.Referer,
			Title:          siteTitle(assistantCfg.Title),
			HTTPClient:     &http.Client{Timeout: assistantCfg.Timeout},
		})
	} else {
		log.Warn("OPENROUTER_API_KEY not set, assistant runs in offline mode")
	}

	var search assistant.TitleSearcher
	tmdbClient := tmdb.NewClient(tmdb.Options{
		APIKey:      tmdbCfg.APIKey,
		BaseURL:     tmdbCfg.BaseURL,
		ImageBase:   tmdbCfg.ImageBase,
		HTTPClient:  &http.Client{Timeout: tmdbCfg.Timeout},
		Region:      tmdbCfg.Region,
		TrendingTTL: tmdbCfg.TrendingTTL,
	})
	if tmdbClient.Enabled() {
		search = tmdbClient
		components.Trending = tmdbClient
	}
	components.History = history.NewGormStore(conn)

	components.Assistant = assistant.NewService(components.Guard, completer, search)
	return components, nil
}

// NewEngine builds the gin engine with every route registered.
func NewEngine(conn *gorm.DB, components *Components, jwtCfg config.JWTConfig, corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), corsMiddleware(corsOrigins))
	admin.RegisterAdminRoutes(engine, conn, jwtCfg)
	deps := front.Dependencies{
		Assistant: components.Assistant,
		Quotas:    components.Guard,
		History:   components.History,
	}
	if components.Trending != nil {
		deps.Trending = components.Trending
	}
	front.RegisterFrontRoutes(engine, deps, jwtCfg)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}

// RunServer boots the assistant gateway and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := internalsettings.RefreshDBConfig(ctx, conn); errRefresh != nil {
		return errRefresh
	}
	internalsettings.StartRefresher(ctx, conn, settingsRefreshInterval)

	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return fmt.Errorf("app: jwt secret is required (set `jwt.secret` or %s)", config.EnvJWTSecret)
	}

	components, err := BuildComponents(ctx, conn, configPath)
	if err != nil {
		return err
	}
	defer components.Close()

	serverCfg, err := loadServerSection(configPath)
	if err != nil {
		return err
	}
	addr := listenAddress(serverCfg, defaultPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewEngine(conn, components, jwtCfg, serverCfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("film4u assistant gateway listening on %s (%s)", addr, DescribeDSN(dsn))
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}

// guardSettings turns the file config into guard defaults; zero values keep the built-ins.
func guardSettings(cfg config.GuardConfig) (guard.SettingsConfig, error) {
	out := guard.DefaultSettingsConfig()
	if cfg.BurstWindow > 0 {
		out.BurstWindow = cfg.BurstWindow
	}
	if cfg.MaxBurst > 0 {
		out.MaxBurst = cfg.MaxBurst
	}
	if cfg.GuestDailyLimit > 0 {
		out.GuestDailyLimit = cfg.GuestDailyLimit
	}
	if cfg.UserDailyLimit > 0 {
		out.UserDailyLimit = cfg.UserDailyLimit
	}
	if strings.TrimSpace(cfg.OnStoreError) != "" {
		policy, ok := guard.ParseStoreErrorPolicy(cfg.OnStoreError)
		if !ok {
			return guard.SettingsConfig{}, fmt.Errorf("app: unknown guard on-store-error %q", cfg.OnStoreError)
		}
		out.OnStoreError = policy
	}
	if cfg.StoreTimeout > 0 {
		out.StoreTimeout = cfg.StoreTimeout
	}
	loc, err := cfg.Location()
	if err != nil {
		return guard.SettingsConfig{}, err
	}
	out.Location = loc

	out.RedisEnabled = cfg.Redis.Enabled
	out.RedisAddr = strings.TrimSpace(cfg.Redis.Addr)
	out.RedisPassword = cfg.Redis.Password
	out.RedisDB = cfg.Redis.DB
	if prefix := strings.TrimSpace(cfg.Redis.Prefix); prefix != "" {
		out.RedisPrefix = prefix
	}
	return out, nil
}

// siteTitle prefers the configured title, then the SITE_NAME setting.
func siteTitle(configured string) func() string {
	configured = strings.TrimSpace(configured)
	return func() string {
		if configured != "" {
			return configured
		}
		if raw, ok := internalsettings.DBConfigValue(internalsettings.SiteNameKey); ok {
			if name := strings.Trim(strings.TrimSpace(string(raw)), `"`); name != "" {
				return name
			}
		}
		return internalsettings.DefaultSiteName
	}
}

func startGuestPruner(ctx context.Context, store *guard.GormGuestStore) {
	go func() {
		ticker := time.NewTicker(guestPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, errPrune := store.PruneGuests(ctx, time.Now().Add(-guestRetention))
				if errPrune != nil {
					log.WithError(errPrune).Warn("prune guest quotas failed")
					continue
				}
				if removed > 0 {
					log.Debugf("pruned %d stale guest quota rows", removed)
				}
			}
		}
	}()
}

// listenAddress resolves host and port from the config file, falling back to defaultPort.
func listenAddress(server configFile, defaultPort int) string {
	port := server.Port
	if port <= 0 {
		port = defaultPort
	}
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(strings.TrimSpace(server.Host), strconv.Itoa(port))
}

// requestLogger logs one line per request through logrus.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}
