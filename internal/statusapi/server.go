// Package statusapi serves read-only migration status over HTTP so deploy
// tooling can check whether a database is up to date.
package statusapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bcomnes/dbgen"
)

// Options configures the router.
type Options struct {
	// AllowedOrigins lists origins allowed by CORS. Empty allows none.
	AllowedOrigins []string

	// Version is reported by /healthz.
	Version string

	Logger *slog.Logger
}

type migrationJSON struct {
	Version  int    `json:"version"`
	Name     string `json:"name"`
	Filename string `json:"filename,omitempty"`
	Applied  bool   `json:"applied"`
}

type server struct {
	tracker *dbgen.Tracker
	opts    Options
}

// NewRouter returns a gin engine serving the tracker's view of the database.
func NewRouter(tracker *dbgen.Tracker, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &server{tracker: tracker, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.health)
	r.GET("/version", s.version)
	r.GET("/migrations", s.migrations)
	r.GET("/pending", s.pending)
	return r
}

func (s *server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.opts.Logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "dbgen": s.opts.Version})
}

func (s *server) version(c *gin.Context) {
	v, ok, err := s.tracker.CurrentVersion(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"version": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

func (s *server) migrations(c *gin.Context) {
	status, err := s.tracker.Status(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]migrationJSON, 0, len(status))
	for _, st := range status {
		out = append(out, migrationJSON{Version: st.Version, Name: st.Name, Filename: st.Filename, Applied: st.Applied})
	}
	c.JSON(http.StatusOK, gin.H{"migrations": out, "count": len(out)})
}

func (s *server) pending(c *gin.Context) {
	err := s.tracker.AbortIfPending(c.Request.Context())
	var pendingErr *dbgen.PendingMigrationsError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"pending": []migrationJSON{}})
	case errors.As(err, &pendingErr):
		out := make([]migrationJSON, 0, len(pendingErr.Pending))
		for _, m := range pendingErr.Pending {
			out = append(out, migrationJSON{Version: m.Version, Name: m.Name, Filename: m.Filename})
		}
		c.JSON(http.StatusConflict, gin.H{"pending": out, "message": pendingErr.Error()})
	default:
		s.fail(c, err)
	}
}

func (s *server) fail(c *gin.Context, err error) {
	s.opts.Logger.Error("status request failed", slog.String("path", c.Request.URL.Path), slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// Serve runs the router on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
