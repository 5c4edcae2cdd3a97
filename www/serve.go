package www

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status reports what the health endpoint shows.
type Status interface {
	GuildCount() int
	SessionCount() int
}

type health struct {
	Status   string `json:"status"`
	Uptime   int64  `json:"uptime"`
	Guilds   int    `json:"guilds"`
	Sessions int    `json:"sessions"`
}

func NewRouter(status Status, gatherer prometheus.Gatherer) *chi.Mux {
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Axiom Bot is running")
		fmt.Fprintln(w)
		chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			fmt.Fprintf(w, "%s %s\n", method, strings.TrimSuffix(route, "/*"))
			return nil
		})
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health{
			Status:   "healthy",
			Uptime:   int64(time.Since(started).Seconds()),
			Guilds:   status.GuildCount(),
			Sessions: status.SessionCount(),
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func Serve(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// KeepAlive requests url every interval so free hosting tiers do not put
// the process to sleep.
func KeepAlive(ctx context.Context, url string, interval time.Duration, logger *log.Logger) {
	client := &http.Client{Timeout: 30 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				logger.Warn("keep-alive request", "error", err)
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				logger.Debug("keep-alive ping failed", "error", err)
				continue
			}
			resp.Body.Close()
			logger.Debug("keep-alive ping sent", "status", resp.StatusCode)
		}
	}
}
