package admin

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/go-crosssock/crosssock/internal/server"
)

// PeerView summarizes a connected peer for the admin surface; it never
// exposes socket internals.
type PeerView struct {
	ID         uint32 `json:"id"`
	RemoteAddr string `json:"remote_addr"`
	State      string `json:"state"`
}

// Surface is the read-only admin HTTP surface for a running Server.
type Surface struct {
	node      string
	srv       *server.Server
	startedAt time.Time
	engine    *gin.Engine
}

// New builds the gin engine for node's admin surface. srv is polled at
// request time; Surface never mutates it.
func New(node string, srv *server.Server, log zerolog.Logger, corsOrigins []string) *Surface {
	RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(RequestMetricsMiddleware(node))
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Surface{node: node, srv: srv, startedAt: time.Now(), engine: r}

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/peers", s.handlePeers)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Run blocks serving the admin surface on addr.
func (s *Surface) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Surface) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"service": s.node,
	})
}

func (s *Surface) handleReady(c *gin.Context) {
	if s.srv.State() != server.Loop {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "state": s.srv.State().String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "peers": s.srv.PeerCount()})
}

func (s *Surface) handlePeers(c *gin.Context) {
	views := make([]PeerView, 0, s.srv.PeerCount())
	s.srv.RangePeers(func(e *server.ClientEntry) {
		views = append(views, PeerView{ID: e.ID, RemoteAddr: e.RemoteAddr, State: e.StateString()})
	})
	c.JSON(http.StatusOK, gin.H{"peers": views})
}
