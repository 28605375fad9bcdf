package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gpstrack/internal/cache"
	"gpstrack/internal/config"
	"gpstrack/internal/dashboard"
	"gpstrack/internal/geocode"
	"gpstrack/internal/handler"
	"gpstrack/internal/hub"
	"gpstrack/internal/mapsync"
	"gpstrack/internal/middleware"
	"gpstrack/internal/poller"
	"gpstrack/internal/stats"
	"gpstrack/internal/store"
	"gpstrack/pkg/trackapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gpstrack server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"upstream", cfg.FastAPIBase,
		"fallback_mode", cfg.FallbackMode,
		"poll_interval", cfg.PollInterval.String(),
		"redis_enabled", cfg.RedisEnabled,
	)

	var addressCache geocode.AddressCache = cache.NewMemoryCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory address cache", "error", err)
		} else {
			defer redisCache.Close()
			addressCache = redisCache
		}
	}

	layers := store.New()
	wsHub := hub.NewHub(logger)
	mapEngine := mapsync.New(
		mapsync.NewRemoteFactory(wsHub, layers, mapsync.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}),
		cfg.MapContainer,
		logger,
	)

	trackClient := trackapi.New(cfg.TrackSourceURL, cfg.DeviceID)
	poll := poller.New(trackClient, poller.Options{
		Interval:   cfg.PollInterval,
		Retries:    cfg.PollRetries,
		RetryDelay: cfg.PollRetryDelay,
	}, logger)

	// The resolver callback needs the dashboard, which needs the resolver.
	var dash *dashboard.Dashboard
	resolver := geocode.NewResolver(
		geocode.NewClient(cfg.GeocodeURL, cfg.GeocodeUserAgent),
		logger,
		geocode.WithDebounce(cfg.GeocodeDebounce),
		geocode.WithCache(addressCache),
		geocode.WithCacheMetrics(handler.ServerStats),
		geocode.WithOnChange(func(addr string) { dash.OnAddress(addr) }),
	)
	dash = dashboard.New(
		poll,
		stats.New(stats.WithSyntheticSpeed(cfg.SyntheticSpeed)),
		mapEngine,
		resolver,
		wsHub,
		cfg.StreamURL,
		logger,
	)
	poll.Subscribe(dash)

	proxyHandler := handler.NewProxyHandler(cfg.FastAPIBase, cfg.FallbackMode, cfg.ProxyTimeout, logger)
	httpHandler := handler.NewHTTPHandler(dash)
	wsHandler := handler.NewWSHandler(wsHub, layers, dash, logger)
	healthHandler := handler.NewHealthHandler(poll, mapEngine)
	statsHandler := handler.NewStatsHandler(poll, layers, wsHub)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, logger,
		middleware.WithWhitelist(cfg.RateLimitWhitelist),
		middleware.WithOnBlocked(handler.ServerStats.IncRateLimitBlocked),
	)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/track", proxyHandler.Track)
	api.HandleFunc("GET /api/state", httpHandler.GetState)
	api.HandleFunc("PUT /api/config", httpHandler.UpdateConfig)
	api.HandleFunc("POST /api/refetch", httpHandler.Refetch)
	api.HandleFunc("POST /api/error/dismiss", httpHandler.DismissError)
	api.HandleFunc("GET /api/metrics", statsHandler.GetStats)

	mux := http.NewServeMux()
	mux.Handle("/api/", rateLimiter.Middleware(handler.GzipMiddleware(api)))
	mux.HandleFunc("/api/ws", wsHandler.ServeWS)
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.CORSMiddleware(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	go wsHub.Run(hubCtx)
	go rateLimiter.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	mapEngine.Init()
	poll.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	poll.Stop()
	resolver.Close()
	mapEngine.Close()
	stopHub()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
