package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/engine"
	"github.com/codeready-toolchain/tarsy/internal/observer"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// fakeEngine is a minimal observer.Engine implementation for driving
// the HTTP layer in tests without a real running village.
type fakeEngine struct {
	tick      int
	weather   domain.Weather
	locations map[domain.LocationID]domain.Location
	agents    map[domain.AgentName]domain.AgentSnapshot
	scheduler *scheduler.Scheduler
	committed []domain.DomainEvent
}

func newFakeEngine() *fakeEngine {
	agent := domain.AgentSnapshot{Name: "Sage", Location: "plaza", Energy: 50}
	return &fakeEngine{
		tick:      3,
		weather:   domain.WeatherClear,
		locations: map[domain.LocationID]domain.Location{"plaza": {ID: "plaza"}, "library": {ID: "library"}},
		agents:    map[domain.AgentName]domain.AgentSnapshot{agent.Name: agent},
		scheduler: scheduler.New(),
	}
}

func (f *fakeEngine) Tick() int                                       { return f.tick }
func (f *fakeEngine) CurrentTimeSnapshot() domain.TimeSnapshot         { return domain.TimeSnapshot{} }
func (f *fakeEngine) Weather() domain.Weather                         { return f.weather }
func (f *fakeEngine) Locations() map[domain.LocationID]domain.Location { return f.locations }
func (f *fakeEngine) AgentSnapshot(agent domain.AgentName) (domain.AgentSnapshot, bool) {
	a, ok := f.agents[agent]
	return a, ok
}
func (f *fakeEngine) AllAgents() map[domain.AgentName]domain.AgentSnapshot { return f.agents }
func (f *fakeEngine) AgentsAtLocation(domain.LocationID) []domain.AgentSnapshot { return nil }
func (f *fakeEngine) Conversations() []domain.Conversation                     { return nil }
func (f *fakeEngine) ConversationByID(domain.ConversationID) (domain.Conversation, bool) {
	return domain.Conversation{}, false
}
func (f *fakeEngine) ConversationForAgent(domain.AgentName) (domain.Conversation, bool) {
	return domain.Conversation{}, false
}
func (f *fakeEngine) PendingInvites() []domain.Invitation { return nil }
func (f *fakeEngine) PendingInviteFor(domain.AgentName) (domain.Invitation, bool) {
	return domain.Invitation{}, false
}
func (f *fakeEngine) ScheduleState() scheduler.State { return f.scheduler.ToState() }
func (f *fakeEngine) ForceNextTurn(agent domain.AgentName) error {
	if _, ok := f.agents[agent]; !ok {
		return &engine.AgentNotFoundError{Agent: agent}
	}
	f.scheduler.ForceNextTurn(agent)
	return nil
}
func (f *fakeEngine) SkipTurns(agent domain.AgentName, count int) error {
	if _, ok := f.agents[agent]; !ok {
		return &engine.AgentNotFoundError{Agent: agent}
	}
	f.scheduler.SkipTurns(agent, count)
	return nil
}
func (f *fakeEngine) ClearAllModifiers() { f.scheduler.ClearAllModifiers() }
func (f *fakeEngine) EventsSince(int) ([]domain.DomainEvent, error) { return f.committed, nil }
func (f *fakeEngine) CommitEvent(event domain.DomainEvent) error {
	f.committed = append(f.committed, event)
	return nil
}
func (f *fakeEngine) ApplyEffect(context.Context, domain.Effect) error { return nil }
func (f *fakeEngine) EndConversation(context.Context, domain.ConversationID, string) error {
	return nil
}
func (f *fakeEngine) WriteToAgentDreams(domain.AgentName, string) error { return nil }

func newTestServer() (*Server, *fakeEngine) {
	gin.SetMode(gin.TestMode)
	fake := newFakeEngine()
	return NewServer(observer.New(fake), nil), fake
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandlers_GetVillageSnapshot(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/village", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["Tick"])
}

func TestHandlers_GetAgent_Found(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/agents/Sage", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_GetAgent_NotFound(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/agents/Unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_TriggerEvent(t *testing.T) {
	s, fake := newTestServer()

	rec := doRequest(t, s, http.MethodPost, "/commands/trigger-event", map[string]any{
		"description": "A storm approaches!",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fake.committed, 1)
}

func TestHandlers_MoveAgent_InvalidLocation(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodPost, "/commands/move", map[string]any{
		"agent": "Sage", "destination": "nonexistent",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_MoveAgent_UnknownAgent(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodPost, "/commands/move", map[string]any{
		"agent": "Unknown", "destination": "library",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_MoveAgent_Success(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodPost, "/commands/move", map[string]any{
		"agent": "Sage", "destination": "library",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_ForceTurn_UnknownAgent(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodPost, "/commands/force-turn", map[string]any{"agent": "Unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_ClearAllModifiers(t *testing.T) {
	s, fake := newTestServer()
	fake.scheduler.ForceNextTurn("Sage")

	rec := doRequest(t, s, http.MethodPost, "/commands/clear-modifiers", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := fake.scheduler.GetForcedNext()
	assert.False(t, ok)
}

func TestHandlers_Health(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
