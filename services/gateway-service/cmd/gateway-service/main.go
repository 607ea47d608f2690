package main

import (
	"context"
	"crypto/rsa"
	"embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/petshophq/petshop-backend/libs/auth"
	"github.com/petshophq/petshop-backend/libs/config"
	"github.com/petshophq/petshop-backend/libs/httpx"
	otelx "github.com/petshophq/petshop-backend/libs/otel"
	"github.com/petshophq/petshop-backend/libs/runtime"
	"github.com/petshophq/petshop-backend/services/gateway-service/internal/activity"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	var jwtPublicKey *rsa.PublicKey
	if raw := strings.TrimSpace(config.String("JWT_PUBLIC_KEY", "")); raw != "" {
		jwtPublicKey, err = auth.ParseRSAPublicKey(raw)
		if err != nil {
			logger.Error("invalid JWT_PUBLIC_KEY", "err", err)
			panic(err)
		}
		logger.Info("token verification via RS256 public key")
	}

	var rdb *redis.Client
	var tracker *activity.Tracker
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		tracker = activity.NewTracker(rdb, logger)
	}

	mux := runtime.NewBaseMuxWithReady()
	registerRoutes(mux, logger, jwtSecret, jwtPublicKey, tracker)

	bodyLimit := int64(1 << 20) // 1MB
	if v, err := strconv.Atoi(config.String("REQUEST_BODY_LIMIT_BYTES", "1048576")); err == nil && v > 0 {
		bodyLimit = int64(v)
	}
	requestTimeout := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)

	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	middlewares := []httpx.Middleware{
		httpx.WithSecurityHeaders(config.String("CONTENT_SECURITY_POLICY", "")),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: isTruthy(config.String("CORS_ALLOW_CREDENTIALS", "false")),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	}
	if tracker != nil {
		middlewares = append(middlewares, tracker.Middleware())
	}

	handler := httpx.Chain(mux, middlewares...)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func registerRoutes(mux *http.ServeMux, logger *slog.Logger, jwtSecret string, jwtPublicKey *rsa.PublicKey, tracker *activity.Tracker) {
	authURL := mustParseURL(config.String("AUTH_URL", "http://auth-service:8081"))
	inventoryURL := mustParseURL(config.String("INVENTORY_URL", "http://inv-service:8082"))

	authProxy := httputil.NewSingleHostReverseProxy(authURL)
	inventoryProxy := httputil.NewSingleHostReverseProxy(inventoryURL)
	otelTransport := otelhttp.NewTransport(http.DefaultTransport)
	authProxy.Transport = otelTransport
	inventoryProxy.Transport = otelTransport

	// Anyone may ask for a password reset; the response never reveals
	// whether the account exists.
	registerProxy(mux, "/api/v1/auth", authProxy)
	registerProxy(mux, "/api/v1/products", inventoryProxy)
	mux.Handle("/api/v1/products/restock", requireAuth(requireRole(inventoryProxy, "admin"), jwtSecret, jwtPublicKey))
	registerProxy(mux, "/api/v1/sales", requireAuth(inventoryProxy, jwtSecret, jwtPublicKey))

	if tracker != nil {
		mux.Handle("/api/v1/activity", requireAuth(requireRole(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, err := tracker.Count(r.Context())
			if err != nil {
				logger.Error("activity count failed", "err", err)
				http.Error(w, "activity unavailable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]int64{"requests_last_hour": count})
		}), "admin"), jwtSecret, jwtPublicKey))
	}

	mux.HandleFunc("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func requireAuth(next http.Handler, jwtSecret string, jwtPublicKey *rsa.PublicKey) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		var claims *auth.Claims
		var err error
		if jwtPublicKey != nil {
			// With a public key configured, RS256 is the only accepted
			// algorithm. Honoring the attacker-controlled alg header here
			// would let anyone mint tokens against the shared HMAC secret.
			header, headerErr := auth.ParseHeader(token)
			if headerErr != nil || header.Alg != "RS256" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			claims, err = auth.VerifyRS256(token, jwtPublicKey)
		} else {
			claims, err = auth.ParseAndVerifyHS256(token, jwtSecret)
		}
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Del("X-User-Id")
		r.Header.Del("X-Roles")
		r.Header.Set("X-User-Id", claims.Sub)
		r.Header.Set("X-Roles", strings.Join(claims.Roles, ","))
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, role := range strings.Split(r.Header.Get("X-Roles"), ",") {
			if _, ok := allowed[strings.TrimSpace(role)]; ok {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}
