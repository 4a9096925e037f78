package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server upgrades HTTP connections and attaches them to the hub
type Server struct {
	Hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server around hub
func NewServer(hub *Hub, allowedOrigins []string) *Server {
	return &Server{
		Hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Start runs the hub loop
func (s *Server) Start() {
	go s.Hub.Run()
	s.Hub.log.Info("websocket hub started")
}

// Stop disconnects all clients
func (s *Server) Stop() {
	s.Hub.Stop()
	s.Hub.log.Info("websocket hub stopped")
}

// HandleWebSocket upgrades the connection and starts the client pumps
func (s *Server) HandleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.Hub, uuid.NewString())
	send(s.Hub, s.Hub.Register, client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleWebSocketStats returns WebSocket connection statistics
func (s *Server) HandleWebSocketStats(c *gin.Context) {
	stats := s.Hub.GetStats()
	stats.ActiveConnections = s.Hub.GetClientCount()
	stats.TotalSubscriptions = s.Hub.GetSubscriptionCount()
	stats.LastUpdate = time.Now()

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers WebSocket routes with the Gin router
func (s *Server) RegisterRoutes(router gin.IRouter) {
	ws := router.Group("/ws")
	{
		ws.GET("", s.HandleWebSocket)
		ws.GET("/stats", s.HandleWebSocketStats)
	}
}
