// Package api exposes internal/observer's query/command surface over
// HTTP, plus a WebSocket stream of the same trace events
// internal/tracer records to disk.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy/internal/observer"
)

// Server is the HTTP/WebSocket surface over a running village.
type Server struct {
	router *gin.Engine
	api    *observer.ObserverAPI
	conns  *ConnectionManager

	httpServer *http.Server
}

// NewServer builds a Server wrapping observerAPI, with conns handling
// WebSocket clients. Call Run to start serving.
func NewServer(observerAPI *observer.ObserverAPI, conns *ConnectionManager) *Server {
	router := gin.Default()
	s := &Server{router: router, api: observerAPI, conns: conns}
	s.registerRoutes()
	return s
}

// Router returns the underlying gin engine, for tests that want to
// drive requests with httptest without starting a real listener.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts serving on addr, blocking until the server stops or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	village := s.router.Group("/village")
	{
		village.GET("", s.handleGetVillageSnapshot)
		village.GET("/time", s.handleGetTime)
		village.GET("/weather", s.handleGetWeather)
		village.GET("/schedule", s.handleGetSchedule)
		village.GET("/events", s.handleGetRecentEvents)
	}

	agents := s.router.Group("/agents")
	{
		agents.GET("", s.handleGetAllAgents)
		agents.GET("/:name", s.handleGetAgent)
		agents.GET("/:name/location", s.handleGetAgentLocation)
		agents.GET("/:name/invites", s.handleGetInvitesForAgent)
	}

	s.router.GET("/locations/:id/agents", s.handleGetAgentsAtLocation)

	conversations := s.router.Group("/conversations")
	{
		conversations.GET("", s.handleGetConversations)
		conversations.GET("/participants", s.handleGetConversationParticipants)
		conversations.GET("/for-agent/:name", s.handleGetConversationForAgent)
		conversations.DELETE("/:id", s.handleEndConversation)
	}

	s.router.GET("/invites", s.handleGetPendingInvites)

	commands := s.router.Group("/commands")
	{
		commands.POST("/trigger-event", s.handleTriggerEvent)
		commands.POST("/weather", s.handleSetWeather)
		commands.POST("/dream", s.handleSendDream)
		commands.POST("/force-turn", s.handleForceTurn)
		commands.POST("/skip-turns", s.handleSkipTurns)
		commands.POST("/clear-modifiers", s.handleClearAllModifiers)
		commands.POST("/move", s.handleMoveAgent)
		commands.POST("/mood", s.handleSetMood)
		commands.POST("/sleep", s.handleSetSleeping)
		commands.POST("/energy", s.handleBoostEnergy)
		commands.POST("/record-action", s.handleRecordAction)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "tick": s.api.GetTimeSnapshot().Tick})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if s.conns == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "websocket streaming not available"})
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	s.conns.HandleConnection(c.Request.Context(), conn)
}
