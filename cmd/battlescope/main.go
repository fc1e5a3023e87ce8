package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/battlescope/battlescope/internal/battlescope"
	"github.com/battlescope/battlescope/pkg/app"
	"github.com/battlescope/battlescope/pkg/config"
	"github.com/battlescope/battlescope/pkg/evegateway"
	"github.com/battlescope/battlescope/pkg/handlers"
	"github.com/battlescope/battlescope/pkg/module"
	"github.com/battlescope/battlescope/pkg/version"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "go.uber.org/automaxprocs"
)

// customLoggerMiddleware logs requests but excludes health check endpoints.
func customLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

// corsMiddleware adds permissive CORS headers for the read-side API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	displayBanner()

	versionInfo := version.Get()
	log.Printf("version: %s", version.GetVersionString())
	log.Printf("build: %s (%s)", versionInfo.BuildDate, versionInfo.Platform)

	numCPU := runtime.NumCPU()
	maxProcs := runtime.GOMAXPROCS(0)
	log.Printf("cpu configuration: %d system cpus, GOMAXPROCS=%d", numCPU, maxProcs)

	ctx := context.Background()

	appCtx, err := app.InitializeApp("battlescope")
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer appCtx.Shutdown(ctx)

	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	log.Printf("memory: heap=%s sys=%s gc_cycles=%d", formatBytes(m.HeapAlloc), formatBytes(m.Sys), m.NumGC)
	printMemoryLimits()

	r := chi.NewRouter()
	r.Use(customLoggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)
	r.Use(handlers.TracingMiddleware("battlescope"))

	r.Get("/health", enhancedHealthHandler)

	esiClient := evegateway.NewClientWithRedis(appCtx.Redis)

	bsModule, err := battlescope.NewModule(appCtx.MongoDB, appCtx.Redis, esiClient)
	if err != nil {
		log.Fatalf("failed to build battlescope module: %v", err)
	}
	if err := bsModule.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize battlescope module: %v", err)
	}

	modules := []module.Module{bsModule}

	apiPrefix := config.GetAPIPrefix()
	log.Printf("api prefix: %q", apiPrefix)

	r.Get("/docs", scalarDocsHandler(apiPrefix))

	humaConfig := huma.DefaultConfig("BattleScope API", version.GetVersionString())
	humaConfig.Info.Description = "EVE Online killmail clustering and battle reporting"
	humaConfig.DocsPath = ""
	humaConfig.Tags = []*huma.Tag{
		{Name: "Battles", Description: "Clustered battle reports, killmail log, and dashboard summaries"},
		{Name: "Ruleset", Description: "Active clustering ruleset inspection and administration"},
	}

	frontendURL := config.GetEnv("FRONTEND_URL", "http://localhost:3000")
	serverURL := frontendURL + apiPrefix
	humaConfig.Servers = []*huma.Server{
		{URL: serverURL, Description: "Production server"},
		{URL: "http://localhost:8080" + apiPrefix, Description: "Local development"},
	}

	var api huma.API
	if apiPrefix == "" {
		api = humachi.New(r, humaConfig)
	} else {
		r.Route(apiPrefix, func(prefixRouter chi.Router) {
			api = humachi.New(prefixRouter, humaConfig)
		})
	}

	if err := bsModule.RegisterRoutes(api); err != nil {
		log.Fatalf("failed to register battlescope routes: %v", err)
	}
	log.Printf("openapi spec: %s/openapi.json", apiPrefix)
	log.Printf("scalar docs: /docs")

	for _, mod := range modules {
		go mod.StartBackgroundTasks(ctx)
	}

	port := app.GetPort("8080")
	host := config.GetHost()

	srv := &http.Server{
		Addr:         host + ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting battlescope server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("received shutdown signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	for _, mod := range modules {
		mod.Stop()
	}

	appCtx.Shutdown(shutdownCtx)
	slog.Info("battlescope shutdown completed")
}

func enhancedHealthHandler(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()
	handlers.JSONResponse(w, map[string]string{
		"status":     "healthy",
		"service":    "battlescope",
		"version":    versionInfo.Version,
		"git_commit": versionInfo.GitCommit,
		"build_date": versionInfo.BuildDate,
		"go_version": versionInfo.GoVersion,
		"platform":   versionInfo.Platform,
	}, http.StatusOK)
}

// scalarDocsHandler serves the Scalar API documentation interface.
func scalarDocsHandler(apiPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}

		openAPIPath := "/openapi.json"
		if apiPrefix != "" {
			openAPIPath = apiPrefix + "/openapi.json"
		}
		openAPIURL := fmt.Sprintf("%s://%s%s", scheme, r.Host, openAPIPath)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>BattleScope API Documentation</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
</head>
<body>
    <script id="api-reference" data-url="%s"></script>
    <script>
        var configuration = { theme: 'kepler', layout: 'classic', darkMode: true, hideModels: false }
    </script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`, openAPIURL)

		w.Write([]byte(html))
	}
}

func displayBanner() {
	fmt.Print("\033[38;5;33m")
	fmt.Print("BATTLESCOPE\n")
	fmt.Print("\033[0m\n")
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func printMemoryLimits() {
	if limit := readCgroupV2MemoryLimit(); limit > 0 {
		log.Printf(" - container limit: %s (cgroups v2)", formatBytes(uint64(limit)))
		return
	}
	if limit := readCgroupV1MemoryLimit(); limit > 0 {
		log.Printf(" - container limit: %s (cgroups v1)", formatBytes(uint64(limit)))
		return
	}
	log.Printf(" - container limit: not detected")
}

func readCgroupV2MemoryLimit() int64 {
	data, err := os.ReadFile("/sys/fs/cgroup/memory.max")
	if err != nil {
		return 0
	}
	limitStr := strings.TrimSpace(string(data))
	if limitStr == "max" {
		return 0
	}
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		return 0
	}
	return limit
}

func readCgroupV1MemoryLimit() int64 {
	data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes")
	if err != nil {
		return 0
	}
	limitStr := strings.TrimSpace(string(data))
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		return 0
	}
	if limit > 1024*1024*1024*1024 {
		return 0
	}
	return limit
}
