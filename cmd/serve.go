package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/feedcurve/internal/model"
	"github.com/sells-group/feedcurve/internal/monitoring"
	"github.com/sells-group/feedcurve/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector := monitoring.NewCollector(st)
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			monitoring.NewPromCollector(collector, cfg.Monitoring.LookbackWindowHours),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, reg, cfg.Server.RateLimit),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runAPI serves read-only views of the run store.
type runAPI struct {
	st store.Store
}

// newRouter builds the HTTP routes. A non-positive rps disables rate limiting.
func newRouter(st store.Store, gatherer prometheus.Gatherer, rps float64) http.Handler {
	api := &runAPI{st: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if rps > 0 {
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))))
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", api.health)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", api.listRuns)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", api.getRun)
				r.Get("/stages", api.listStages)
				r.Get("/aggregates", api.listAggregates)
			})
		})
	})

	return r
}

// rateLimit rejects requests beyond the limiter's budget with 429.
func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				zap.L().Warn("rate limit exceeded",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("Retry-After", "1")
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, errorBody("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// renderError maps store errors to HTTP statuses.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
		msg = "run not found"
	} else {
		zap.L().Error("serve: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	render.Status(r, status)
	render.JSON(w, r, errorBody(msg))
}

func (a *runAPI) health(w http.ResponseWriter, r *http.Request) {
	if _, err := a.st.ListRuns(r.Context(), store.RunFilter{Limit: 1}); err != nil {
		zap.L().Warn("serve: health check failed", zap.Error(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (a *runAPI) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorBody("invalid "+name))
			return
		}
		*dst = n
	}

	runs, err := a.st.ListRuns(r.Context(), filter)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	render.JSON(w, r, runs)
}

func (a *runAPI) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.st.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}

func (a *runAPI) listStages(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := a.st.GetRun(r.Context(), runID); err != nil {
		renderError(w, r, err)
		return
	}
	stages, err := a.st.ListStageReports(r.Context(), runID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if stages == nil {
		stages = []model.StageReport{}
	}
	render.JSON(w, r, stages)
}

func (a *runAPI) listAggregates(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := a.st.GetRun(r.Context(), runID); err != nil {
		renderError(w, r, err)
		return
	}
	aggs, err := a.st.ListAggregates(r.Context(), runID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	out := make([]aggregateView, len(aggs))
	for i, ag := range aggs {
		out[i] = aggregateView{
			LotKey:                  ag.Lot.String(),
			EnvironmentID:           ag.Lot.EnvironmentID,
			BatchID:                 ag.Lot.BatchID,
			TotalConsumptionPerBird: ag.TotalConsumptionPerBird,
			Rows:                    ag.Rows,
		}
	}
	render.JSON(w, r, out)
}

// aggregateView is the JSON shape of one aggregate row.
type aggregateView struct {
	LotKey                  string  `json:"lotKey"`
	EnvironmentID           int     `json:"environmentId"`
	BatchID                 int     `json:"batchId"`
	TotalConsumptionPerBird float64 `json:"totalConsumptionPerBird"`
	Rows                    int     `json:"rows"`
}
