package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Tunehub/cache"
	"Tunehub/config"
	"Tunehub/core/auth"
	"Tunehub/core/presence"
	"Tunehub/core/relay"
	"Tunehub/db"
	"Tunehub/events"
	"Tunehub/logger"
	"Tunehub/metrics"
	"Tunehub/repository"
	"Tunehub/storage"

	"github.com/gorilla/mux"
)

const tokenExpiry = 24 * time.Hour

// RouterConfig holds the cross-cutting pieces of the router.
type RouterConfig struct {
	Resolver *auth.Resolver
	Origins  OriginAllower
	Limiter  Limiter      // nil disables rate limiting
	Socket   http.Handler // relay upgrade endpoint

	Metrics        RequestObserver // optional
	MetricsHandler http.Handler    // served at /metrics when set
}

// NewRouter wires every route. CORS wraps the whole router so that
// preflight requests are answered even for routes without an OPTIONS method.
func NewRouter(h *APIHandler, rc RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	if rc.Socket != nil {
		router.Handle("/socket", rc.Socket)
	}
	if rc.MetricsHandler != nil {
		router.Handle("/metrics", rc.MetricsHandler).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(loggingMiddleware(rc.Metrics))
	if rc.Limiter != nil {
		api.Use(rateLimitMiddleware(rc.Limiter))
	}
	api.Use(rc.Resolver.Middleware)

	authed := auth.RequireAuth
	admin := auth.RequireAdmin(h.adminExternalID, h.adminEmail)

	// 认证
	api.HandleFunc("/auth/callback", authed(h.AuthCallbackHandler)).Methods(http.MethodPost)

	// 用户
	api.HandleFunc("/users", authed(h.ListUsersHandler)).Methods(http.MethodGet)
	api.HandleFunc("/users/me", authed(h.CurrentUserHandler)).Methods(http.MethodGet)
	api.HandleFunc("/users/messages/{userId}", authed(h.MessagesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/users/toggle-follow/{targetUserExternalId}", authed(h.ToggleFollowHandler)).Methods(http.MethodPost)

	// 歌曲
	api.HandleFunc("/songs", admin(h.AllSongsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/songs/featured", h.FeaturedSongsHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/made-for-you", h.MadeForYouHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/trending", h.TrendingSongsHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id}/like", authed(h.ToggleLikeHandler)).Methods(http.MethodPost)
	api.HandleFunc("/songs/{id}/comments", h.ListCommentsHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id}/comments", authed(h.AddCommentHandler)).Methods(http.MethodPost)
	api.HandleFunc("/songs/{id}/comments/{commentId}", authed(h.DeleteCommentHandler)).Methods(http.MethodDelete)

	// 专辑
	api.HandleFunc("/albums", h.ListAlbumsHandler).Methods(http.MethodGet)
	api.HandleFunc("/albums/{id}", h.GetAlbumHandler).Methods(http.MethodGet)

	api.HandleFunc("/stats", admin(h.StatsHandler)).Methods(http.MethodGet)

	// 动态
	api.HandleFunc("/activity/log-listen", authed(h.LogListenHandler)).Methods(http.MethodPost)
	api.HandleFunc("/activity/feed", authed(h.FeedHandler)).Methods(http.MethodGet)

	// 管理员
	api.HandleFunc("/admin/is-admin", authed(h.IsAdminHandler)).Methods(http.MethodGet)
	api.HandleFunc("/admin/check", admin(h.CheckAdminHandler)).Methods(http.MethodGet)
	api.HandleFunc("/admin/songs", admin(h.CreateSongHandler)).Methods(http.MethodPost)
	api.HandleFunc("/admin/songs/{id}", admin(h.UpdateSongHandler)).Methods(http.MethodPut)
	api.HandleFunc("/admin/songs/{id}", admin(h.DeleteSongHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/admin/albums", admin(h.CreateAlbumHandler)).Methods(http.MethodPost)
	api.HandleFunc("/admin/albums/{id}", admin(h.UpdateAlbumHandler)).Methods(http.MethodPut)
	api.HandleFunc("/admin/albums/{id}", admin(h.DeleteAlbumHandler)).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})

	return corsMiddleware(rc.Origins)(router)
}

// Start connects the backing services, serves HTTP and the relay, and blocks
// until SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	// Redis 不可用时关闭限流与在线镜像
	rdb, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting and presence mirror disabled", logger.ErrorField(err))
		rdb = nil
	} else {
		defer db.CloseRedis()
	}

	assets, err := storage.NewAssetStore(cfg)
	if err != nil {
		return err
	}
	bucketCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := assets.EnsureBucket(bucketCtx); err != nil {
		logger.Warn("asset bucket not ready, uploads will fail", logger.ErrorField(err))
	}
	cancel()

	users := repository.NewGormUserRepository(gdb)
	messages := repository.NewGormMessageRepository(gdb)
	activities := repository.NewGormActivityRepository(gdb)
	resolver := auth.NewResolver(cfg.JWTSecret, cfg.JWTIssuer, tokenExpiry)
	origins := config.NewOriginPolicy(cfg.AllowedOrigins)

	appMetrics := metrics.New()
	observers := relay.Observers{appMetrics}
	var limiter Limiter
	if rdb != nil {
		mirror := cache.NewPresenceMirror(rdb)
		if err := mirror.Reset(context.Background()); err != nil {
			logger.Warn("failed to reset presence mirror", logger.ErrorField(err))
		}
		observers = append(observers, mirror)
		limiter = cache.NewRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	publisher, err := events.NewPublisher(cfg)
	if err != nil {
		logger.Warn("event publishing disabled", logger.ErrorField(err))
	}
	if publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to flush events", logger.ErrorField(err))
			}
		}()
		emitter := events.NewEmitter(publisher)
		observers = append(observers, emitter)
		messages = events.Messages{MessageRepository: messages, Emitter: emitter}
		activities = events.Activities{ActivityRepository: activities, Emitter: emitter}
		logger.Info("event publishing enabled", logger.String("driver", cfg.EventsDriver))
	}

	relayServer := relay.NewServer(
		presence.NewRegistry[*relay.Client](),
		repository.UserMessages{UserRepository: users, MessageRepository: messages},
		relay.Options{
			Hardened:       cfg.RelayHardened,
			PersistTimeout: cfg.RelayPersistTimeout,
			Resolver:       resolver,
			Origins:        origins,
			Observer:       observers,
		},
	)
	appMetrics.TrackOnline(relayServer.Online)

	handler := NewAPIHandler(Deps{
		Users:           users,
		Messages:        messages,
		Songs:           repository.NewGormSongRepository(gdb),
		Albums:          repository.NewGormAlbumRepository(gdb),
		Activities:      activities,
		Assets:          assets,
		Relay:           relayServer,
		AdminExternalID: cfg.AdminExternalID,
		AdminEmail:      cfg.AdminEmail,
	})

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: NewRouter(handler, RouterConfig{
			Resolver: resolver,
			Origins:  origins,
			Limiter:  limiter,
			Socket:   relayServer,

			Metrics:        appMetrics,
			MetricsHandler: appMetrics.Handler(),
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(cfg.EnvFile); err == nil {
		go func() {
			if err := config.WatchEnvFile(ctx, cfg.EnvFile, origins); err != nil {
				logger.Warn("env watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			logger.String("addr", srv.Addr),
			logger.Bool("relayHardened", cfg.RelayHardened),
			logger.Strings("origins", origins.List()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	relayServer.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
