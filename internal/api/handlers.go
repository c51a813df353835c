package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

// --- Village-level queries ---

func (s *Server) handleGetVillageSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.api.GetVillageSnapshot())
}

func (s *Server) handleGetTime(c *gin.Context) {
	c.JSON(http.StatusOK, s.api.GetTimeSnapshot())
}

func (s *Server) handleGetWeather(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"weather": s.api.GetWeather()})
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, s.api.GetScheduleSnapshot())
}

func (s *Server) handleGetRecentEvents(c *gin.Context) {
	since, err := strconv.Atoi(c.DefaultQuery("since", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an integer tick"})
		return
	}
	events, err := s.api.GetRecentEvents(since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// --- Agent queries ---

func (s *Server) handleGetAllAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.api.GetAllAgentsSnapshot())
}

func (s *Server) handleGetAgent(c *gin.Context) {
	agent := domain.AgentName(c.Param("name"))
	snapshot, ok := s.api.GetAgentSnapshot(agent)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleGetAgentLocation(c *gin.Context) {
	agent := domain.AgentName(c.Param("name"))
	loc, ok := s.api.GetAgentLocation(agent)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": loc})
}

func (s *Server) handleGetAgentsAtLocation(c *gin.Context) {
	loc := domain.LocationID(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"agents": s.api.GetAgentsAtLocation(loc)})
}

func (s *Server) handleGetInvitesForAgent(c *gin.Context) {
	agent := domain.AgentName(c.Param("name"))
	c.JSON(http.StatusOK, gin.H{"invites": s.api.GetInvitesForAgent(agent)})
}

// --- Conversation queries ---

func (s *Server) handleGetConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conversations": s.api.GetConversations()})
}

func (s *Server) handleGetConversationParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"participants": s.api.GetConversationParticipants()})
}

func (s *Server) handleGetConversationForAgent(c *gin.Context) {
	agent := domain.AgentName(c.Param("name"))
	conv, ok := s.api.GetConversationForAgent(agent)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent is not in a conversation"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleGetPendingInvites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"invites": s.api.GetPendingInvites()})
}

// --- World event commands ---

type triggerEventRequest struct {
	Description    string            `json:"description" binding:"required"`
	Location       *domain.LocationID `json:"location"`
	AgentsInvolved []domain.AgentName `json:"agents_involved"`
}

func (s *Server) handleTriggerEvent(c *gin.Context) {
	var req triggerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := s.api.DoTriggerEvent(req.Description, req.Location, req.AgentsInvolved)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

type setWeatherRequest struct {
	Weather domain.Weather `json:"weather" binding:"required"`
}

func (s *Server) handleSetWeather(c *gin.Context) {
	var req setWeatherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := s.api.DoSetWeather(req.Weather)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

type sendDreamRequest struct {
	Agent   domain.AgentName `json:"agent" binding:"required"`
	Content string           `json:"content" binding:"required"`
}

func (s *Server) handleSendDream(c *gin.Context) {
	var req sendDreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.api.DoSendDream(req.Agent, req.Content); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Scheduling commands ---

type agentRequest struct {
	Agent domain.AgentName `json:"agent" binding:"required"`
}

func (s *Server) handleForceTurn(c *gin.Context) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.api.DoForceTurn(req.Agent); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type skipTurnsRequest struct {
	Agent domain.AgentName `json:"agent" binding:"required"`
	Count int              `json:"count" binding:"required"`
}

func (s *Server) handleSkipTurns(c *gin.Context) {
	var req skipTurnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.api.DoSkipTurns(req.Agent, req.Count); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearAllModifiers(c *gin.Context) {
	s.api.DoClearAllModifiers()
	c.Status(http.StatusNoContent)
}

// --- Agent manipulation commands ---

type moveAgentRequest struct {
	Agent       domain.AgentName `json:"agent" binding:"required"`
	Destination domain.LocationID `json:"destination" binding:"required"`
}

func (s *Server) handleMoveAgent(c *gin.Context) {
	var req moveAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	effect, err := s.api.DoMoveAgent(c.Request.Context(), req.Agent, req.Destination)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, effect)
}

type setMoodRequest struct {
	Agent domain.AgentName `json:"agent" binding:"required"`
	Mood  string           `json:"mood" binding:"required"`
}

func (s *Server) handleSetMood(c *gin.Context) {
	var req setMoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	effect, err := s.api.DoSetMood(c.Request.Context(), req.Agent, req.Mood)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, effect)
}

type setSleepingRequest struct {
	Agent    domain.AgentName `json:"agent" binding:"required"`
	Sleeping bool             `json:"sleeping"`
}

func (s *Server) handleSetSleeping(c *gin.Context) {
	var req setSleepingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	effect, err := s.api.DoSetSleeping(c.Request.Context(), req.Agent, req.Sleeping)
	if err != nil {
		writeError(c, err)
		return
	}
	if effect == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, effect)
}

type boostEnergyRequest struct {
	Agent  domain.AgentName `json:"agent" binding:"required"`
	Amount int              `json:"amount" binding:"required"`
}

func (s *Server) handleBoostEnergy(c *gin.Context) {
	var req boostEnergyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	effect, err := s.api.DoBoostEnergy(c.Request.Context(), req.Agent, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, effect)
}

type recordActionRequest struct {
	Agent       domain.AgentName `json:"agent" binding:"required"`
	Description string           `json:"description" binding:"required"`
}

func (s *Server) handleRecordAction(c *gin.Context) {
	var req recordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := s.api.DoRecordAction(req.Agent, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// --- Conversation commands ---

func (s *Server) handleEndConversation(c *gin.Context) {
	id := domain.ConversationID(c.Param("id"))
	ended, err := s.api.DoEndConversation(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ended {
		c.JSON(http.StatusNotFound, gin.H{"error": "no conversation to end"})
		return
	}
	c.Status(http.StatusNoContent)
}
