package nodeserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds how long in-flight requests may finish after a stop signal.
const shutdownTimeout = 5 * time.Second

// Server is a small static file server exposing health, status and metrics.
// Endpoints:
//
//	GET /healthz   {"status":"ok"}
//	GET /status    pid, start time, uptime and resident memory of this process
//	GET /metrics   Prometheus exposition
//
// Every other path is served from Dir.
type Server struct {
	dir      string
	log      *slog.Logger
	reg      *prometheus.Registry
	requests *prometheus.CounterVec
	started  time.Time
}

func New(dir string, log *slog.Logger) *Server {
	if dir == "" {
		dir = "."
	}
	if log == nil {
		log = slog.Default()
	}
	reg := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeserver",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of HTTP requests served, by status code and method.",
		}, []string{"code", "method"},
	)
	reg.MustRegister(
		requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{dir: dir, log: log, reg: reg, requests: requests, started: time.Now()}
}

// Handler returns the gin engine serving every route.
func (s *Server) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), s.countRequests)
	g.GET("/healthz", s.handleHealth)
	g.GET("/status", s.handleStatus)
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})))

	files := http.FileServer(http.Dir(s.dir))
	g.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusMethodNotAllowed, errorResp{Error: "method not allowed"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
	return g
}

func (s *Server) countRequests(c *gin.Context) {
	c.Next()
	s.requests.WithLabelValues(strconv.Itoa(c.Writer.Status()), c.Request.Method).Inc()
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("node server listening", "addr", ln.Addr().String(), "dir", s.dir, "pid", os.Getpid())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("node server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	RSSBytes      uint64    `json:"rss_bytes"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	info, err := selfInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	started := info.StartedAt
	if started.IsZero() {
		started = s.started
	}
	c.JSON(http.StatusOK, statusResp{
		PID:           info.PID,
		StartedAt:     started.UTC(),
		UptimeSeconds: time.Since(started).Seconds(),
		RSSBytes:      info.RSS,
	})
}
