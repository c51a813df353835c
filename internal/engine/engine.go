// Package engine hosts the village simulation's facade: the single
// entry point that advances the tick pipeline, persists what happened,
// and exposes read/command access to the observer surface built on top
// of it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/config"
	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
	"github.com/codeready-toolchain/tarsy/internal/services"
	"github.com/codeready-toolchain/tarsy/internal/sideindex"
	"github.com/codeready-toolchain/tarsy/internal/storage"
)

// morningHour is the wall-clock hour a skipped night always lands on.
const morningHour = 6

// TickCallback is notified once a tick has fully committed.
type TickCallback func(result runtime.TickResult)

// EventCallback is notified once per event committed this tick, in
// commit order.
type EventCallback func(event domain.DomainEvent)

// JournalWriter appends freeform text to an agent's daily journal file.
type JournalWriter interface {
	AppendJournal(agent domain.AgentName, worldTime time.Time, content string) error
}

// DreamWriter appends a dream entry visible to agent starting at
// visibleAtTick (the tick after the one in which it was written, since
// dream visibility filters on tick > last_active_tick).
type DreamWriter interface {
	AppendDream(agent domain.AgentName, visibleAtTick int, content string) error
}

// Engine drives the village simulation: it owns the scheduler, the
// durable stores, and the tick pipeline, and is the only thing that
// ever mutates village state.
type Engine struct {
	pipeline     *runtime.TickPipeline
	wakeCheck    *phases.WakeCheckPhase
	applyEffects *phases.ApplyEffectsPhase
	scheduler    *scheduler.Scheduler
	agents       *services.AgentRegistry
	convos       *services.ConversationService
	eventStore   *storage.EventStore
	snapshots    *storage.SnapshotStore
	archive      *storage.EventArchive
	journal      JournalWriter
	dreams       DreamWriter
	sideIndex    sideindex.Index

	snapshotInterval int

	mu             sync.Mutex
	tick           int
	timeSnapshot   domain.TimeSnapshot
	world          domain.WorldSnapshot
	unseenEndings  map[domain.AgentName][]domain.UnseenConversationEnding
	recentArrivals map[domain.AgentName]struct{}
	initialized    bool

	running    bool
	pauseReq   bool
	stopCh     chan struct{}
	wg         sync.WaitGroup

	tickCallbacks  []TickCallback
	eventCallbacks []EventCallback
}

// Dependencies bundles the collaborators a fresh Engine needs that
// cannot be constructed from configuration alone.
type Dependencies struct {
	LLMProvider       phases.LLMProvider
	InterpreterClient interpreter.Client
	Syncer            phases.FilesystemSyncer
	Compaction        phases.CompactionService
	Journal           JournalWriter
	Dreams            DreamWriter
	RNG               *rand.Rand

	// SideIndex is an optional asynchronous query accelerator; see
	// internal/sideindex. A nil SideIndex disables it entirely.
	SideIndex sideindex.Index
}

// New opens the durable stores rooted at dataDir and wires the five
// tick phases into a pipeline. It does not load any state: call
// Initialize, InitializeDefault, or Recover before TickOnce.
func New(dataDir string, deps Dependencies) (*Engine, error) {
	eventStore, err := storage.OpenEventStore(filepath.Join(dataDir, "events"))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	snapshots, err := storage.NewSnapshotStore(filepath.Join(dataDir, "snapshots"))
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	archive := storage.NewEventArchive(filepath.Join(dataDir, "events"))

	if deps.Compaction == nil {
		deps.Compaction = noopCompaction{}
	}

	sched := scheduler.New()
	wakeCheck := phases.NewWakeCheckPhase()
	applyEffects := phases.NewApplyEffectsPhase(sched, deps.Compaction)
	pipeline := runtime.NewTickPipeline(
		wakeCheck,
		phases.NewSchedulePhase(sched, deps.RNG),
		phases.NewAgentTurnPhase(deps.LLMProvider, deps.Syncer),
		phases.NewInterpretPhase(deps.InterpreterClient),
		applyEffects,
	)

	return &Engine{
		pipeline:         pipeline,
		wakeCheck:        wakeCheck,
		applyEffects:     applyEffects,
		scheduler:        sched,
		agents:           services.NewAgentRegistry(),
		convos:           services.NewConversationService(deps.RNG),
		eventStore:       eventStore,
		snapshots:        snapshots,
		archive:          archive,
		journal:          deps.Journal,
		dreams:           deps.Dreams,
		sideIndex:        deps.SideIndex,
		snapshotInterval: storage.SnapshotInterval,
		unseenEndings:    make(map[domain.AgentName][]domain.UnseenConversationEnding),
		recentArrivals:   make(map[domain.AgentName]struct{}),
		stopCh:           make(chan struct{}),
	}, nil
}

func (e *Engine) hydrate(snapshot storage.VillageSnapshot) {
	e.world = snapshot.World
	e.agents.LoadState(snapshot.Agents)
	e.convos.LoadState(snapshot.Conversations, snapshot.PendingInvites)
	e.scheduler.LoadState(snapshot.Scheduler)
	e.unseenEndings = snapshot.UnseenEndings
	if e.unseenEndings == nil {
		e.unseenEndings = make(map[domain.AgentName][]domain.UnseenConversationEnding)
	}
	e.tick = snapshot.Tick()
	e.timeSnapshot = domain.TimeSnapshot{
		WorldTime: snapshot.World.WorldTime, Tick: e.tick, StartDate: snapshot.World.StartDate,
	}
	e.initialized = true
}

// Initialize hydrates the engine from an explicit starting snapshot,
// discarding any prior in-memory state, and commits the founding
// WorldEventOccurred marking the village's start.
func (e *Engine) Initialize(snapshot storage.VillageSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hydrate(snapshot)

	names := e.agents.Names()
	founding := domain.NewWorldEventOccurred(
		e.tick, e.timeSnapshot.WorldTime,
		"The village has been founded. Its residents begin their new lives.",
		nil, names,
	)
	return e.commitEventLocked(founding)
}

// InitializeDefault builds a fresh village from cfg's (or the built-in
// default) locations and agents, and initializes from it.
func (e *Engine) InitializeDefault(cfg *config.VillageConfig) error {
	return e.Initialize(config.BuildInitialSnapshot(cfg, cfg.StartTime()))
}

// Recover attempts to hydrate the engine from durable state: the
// latest snapshot plus every event committed since. Returns false with
// no error when no snapshot exists yet, meaning the caller should fall
// back to InitializeDefault.
func (e *Engine) Recover() (bool, error) {
	latest, err := e.snapshots.LoadLatest()
	if err != nil {
		if errors.Is(err, storage.ErrNoSnapshot) {
			return false, nil
		}
		return false, fmt.Errorf("load latest snapshot: %w", err)
	}

	events, err := e.eventStore.ReadSince(latest.Tick())
	if err != nil {
		return false, fmt.Errorf("read events since tick %d: %w", latest.Tick(), err)
	}

	state := &replayState{
		world:          latest.World,
		agents:         cloneAgents(latest.Agents),
		conversations:  cloneConversations(latest.Conversations),
		pendingInvites: clonePendingInvites(latest.PendingInvites),
		unseenEndings:  cloneUnseenEndings(latest.UnseenEndings),
	}
	state.applyEvents(events)

	e.mu.Lock()
	e.hydrate(storage.VillageSnapshot{
		World: state.world, Agents: state.agents, Conversations: state.conversations,
		PendingInvites: state.pendingInvites, Scheduler: latest.Scheduler, UnseenEndings: state.unseenEndings,
	})
	e.mu.Unlock()
	return true, nil
}

// OnTick registers a callback fired after every committed tick. Panics
// from the callback are recovered and logged, never propagated.
func (e *Engine) OnTick(cb TickCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallbacks = append(e.tickCallbacks, cb)
}

// OnEvent registers a callback fired once per committed event, in
// commit order.
func (e *Engine) OnEvent(cb EventCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventCallbacks = append(e.eventCallbacks, cb)
}

// CommitEvent appends event directly to the log and folds it into
// current state, bypassing the tick pipeline. Intended for
// observer-injected events that do not originate from a tick.
func (e *Engine) CommitEvent(event domain.DomainEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitEventLocked(event)
}

func (e *Engine) commitEventLocked(event domain.DomainEvent) error {
	if err := e.eventStore.Append(event); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}

	state := &replayState{
		world: e.world, agents: e.agents.ToState(), conversations: e.convosSnapshot(),
		pendingInvites: e.invitesSnapshot(), unseenEndings: e.unseenEndings,
	}
	state.applyEvent(event)
	e.world = state.world
	e.agents.LoadState(state.agents)
	e.convos.LoadState(state.conversations, state.pendingInvites)
	e.unseenEndings = state.unseenEndings

	for _, cb := range e.eventCallbacks {
		callback := cb
		e.safeCall(func() { callback(event) })
	}
	return nil
}

// ApplyEffect converts effect to events via the same ApplyEffectsPhase
// logic the tick pipeline uses, then commits each resulting event.
// Intended for observer commands issued between ticks.
func (e *Engine) ApplyEffect(ctx context.Context, effect domain.Effect) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyEffectLocked(ctx, effect)
}

func (e *Engine) applyEffectLocked(ctx context.Context, effect domain.Effect) error {
	tc := runtime.NewTickContext(
		e.tick, e.timeSnapshot.WorldTime, e.timeSnapshot,
		e.world, e.agents.ToState(), e.convosSnapshot(), e.invitesSnapshot(), nil,
	).WithEffect(effect)

	next, err := e.applyEffects.Execute(ctx, tc)
	if err != nil {
		return fmt.Errorf("apply effect: %w", err)
	}
	for _, event := range next.Events {
		if err := e.commitEventLocked(event); err != nil {
			return err
		}
	}
	return nil
}

// EndConversation ends conv, converting it to a ConversationEndedEvent
// via ApplyEffect. Returns ConversationError if conv does not exist.
func (e *Engine) EndConversation(ctx context.Context, conv domain.ConversationID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.convos.GetConversation(conv); !ok {
		return &ConversationError{ConversationID: conv, Reason: "not found"}
	}
	return e.applyEffectLocked(ctx, domain.EndConversationEffect{ConversationID: conv, Reason: reason})
}

// WriteToAgentJournal appends content to agent's journal. This is a
// filesystem operation, not an event.
func (e *Engine) WriteToAgentJournal(agent domain.AgentName, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.agents.Get(agent); !ok {
		return &AgentNotFoundError{Agent: agent}
	}
	if e.journal == nil {
		return nil
	}
	return e.journal.AppendJournal(agent, e.timeSnapshot.WorldTime, content)
}

// WriteToAgentDreams appends a dream entry for agent, visible starting
// next tick (since dream visibility filters on tick > last_active_tick,
// and the agent's last_active_tick as of now is the current tick).
func (e *Engine) WriteToAgentDreams(agent domain.AgentName, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.agents.Get(agent); !ok {
		return &AgentNotFoundError{Agent: agent}
	}
	if e.dreams == nil {
		return nil
	}
	return e.dreams.AppendDream(agent, e.tick+1, content)
}

// TickOnce advances the simulation by exactly one tick: it re-seeds the
// schedule, determines the next due time (or skips straight to the next
// morning if every agent is asleep), runs the pipeline, commits the
// resulting events, adopts the resulting state, periodically snapshots,
// and fires callbacks.
func (e *Engine) TickOnce(ctx context.Context) (runtime.TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return runtime.TickResult{}, ErrNotInitialized
	}

	e.ensureSchedule()
	e.wakeCheck.SetRecentArrivals(e.recentArrivals)

	var staged []domain.DomainEvent
	dueTime := e.computeNextTickTime()
	newTick := e.tick + 1

	if skip, nextMorning := e.shouldSkipNight(dueTime); skip {
		staged = append(staged, domain.NewNightSkippedEvent(newTick, nextMorning, e.timeSnapshot.WorldTime, nextMorning))
		dueTime = nextMorning
	}

	scheduledEvents := e.scheduler.PopEventsUpTo(dueTime)
	newTimeSnapshot := domain.TimeSnapshot{WorldTime: dueTime, Tick: newTick, StartDate: e.world.StartDate}
	world := e.world.WithTick(newTick, dueTime)

	tc := runtime.NewTickContext(
		newTick, dueTime, newTimeSnapshot,
		world, e.agents.ToState(), e.convosSnapshot(), e.invitesSnapshot(),
		scheduledEvents,
	)

	result, err := e.pipeline.Execute(ctx, tc)
	if err != nil {
		return runtime.TickResult{}, fmt.Errorf("tick %d: %w", newTick, err)
	}

	allEvents := append(staged, result.Events...)
	if err := e.eventStore.AppendBatch(allEvents); err != nil {
		return runtime.TickResult{}, fmt.Errorf("commit tick %d: %w", newTick, err)
	}
	result.Events = allEvents

	e.world = result.World
	e.agents.LoadState(result.Agents)
	e.convos.LoadState(result.Conversations, result.PendingInvites)
	e.tick = newTick
	e.timeSnapshot = newTimeSnapshot
	e.updateUnseenEndings(allEvents)
	e.updateRecentArrivals(allEvents)

	for agent := range result.AgentsActed {
		e.scheduler.RecordTurn(agent)
	}

	if e.snapshotInterval > 0 && newTick%e.snapshotInterval == 0 {
		if err := e.saveSnapshot(); err != nil {
			slog.Error("snapshot failed", "tick", newTick, "error", err)
		}
	}

	e.ensureSchedule()
	sideindex.RecordAsync(e.sideIndex, e.sideIndexSummaryLocked())
	e.fireCallbacks(result)

	return result, nil
}

// sideIndexSummaryLocked builds the side index's denormalized view of
// the just-committed tick. Callers must hold e.mu.
func (e *Engine) sideIndexSummaryLocked() sideindex.TickSummary {
	agentsByName := e.agents.ToState()
	agents := make([]domain.AgentSnapshot, 0, len(agentsByName))
	for _, agent := range agentsByName {
		agents = append(agents, agent)
	}
	return sideindex.TickSummary{
		Tick:      e.tick,
		WorldTime: e.timeSnapshot.WorldTime,
		Weather:   e.world.Weather,
		Agents:    agents,
		Convos:    e.convos.GetAllConversations(),
	}
}

// computeNextTickTime returns the scheduler's earliest pending due
// time, falling back to the current time plus one solo-turn pace when
// nothing is scheduled at all.
func (e *Engine) computeNextTickTime() time.Time {
	if due, ok := e.scheduler.GetEarliestDueTime(); ok {
		return due
	}
	return e.timeSnapshot.WorldTime.Add(scheduler.SoloPaceMinutes * time.Minute)
}

// shouldSkipNight reports whether the whole village is asleep and it
// isn't morning yet, in which case the tick jumps straight to the next
// 06:00 instead of the scheduler's (much earlier) next due time. The
// skip only applies when doing so actually moves time forward.
func (e *Engine) shouldSkipNight(scheduledDue time.Time) (bool, time.Time) {
	if !e.agents.AllSleeping() {
		return false, time.Time{}
	}
	if e.timeSnapshot.Period() == domain.Morning {
		return false, time.Time{}
	}
	nextMorning := computeNextMorning(e.timeSnapshot.WorldTime)
	if !nextMorning.After(scheduledDue) {
		return false, time.Time{}
	}
	return true, nextMorning
}

func computeNextMorning(current time.Time) time.Time {
	morning := time.Date(current.Year(), current.Month(), current.Day(), morningHour, 0, 0, 0, current.Location())
	if current.Hour() < morningHour {
		return morning
	}
	return morning.AddDate(0, 0, 1)
}

// ensureSchedule seeds the scheduler with one future event for every
// agent that doesn't already have something pending: invite responses
// first, then conversation turns, then solo turns for everyone left
// over who is awake and uninvolved.
func (e *Engine) ensureSchedule() {
	now := e.timeSnapshot.WorldTime
	pacing := defaultPacing()

	for _, invite := range e.convos.GetAllPendingInvites() {
		if !e.scheduler.HasPendingInviteResponse(invite.Invitee) {
			e.scheduler.ScheduleInviteResponse(invite.Invitee, invite.Location, now.Add(pacing.inviteResponse))
		}
	}

	for _, conv := range e.convos.GetAllConversations() {
		if e.scheduler.HasPendingConversationTurn(conv.ID) {
			continue
		}
		e.scheduler.ScheduleConversationTurn(conv.ID, conv.Location, now.Add(pacing.conversationTurn))
	}

	for _, agent := range e.agents.GetAwake() {
		if e.convos.IsInConversation(agent.Name) {
			continue
		}
		if _, invited := e.convos.GetPendingInvite(agent.Name); invited {
			continue
		}
		if e.scheduler.HasPendingAgentTurn(agent.Name) {
			continue
		}
		e.scheduler.ScheduleAgentTurn(agent.Name, agent.Location, now.Add(pacing.soloTurn))
	}
}

func (e *Engine) updateUnseenEndings(events []domain.DomainEvent) {
	for _, event := range events {
		switch ev := event.(type) {
		case domain.ConversationEndingUnseenEvent:
			e.unseenEndings[ev.Agent] = append(e.unseenEndings[ev.Agent], domain.UnseenConversationEnding{
				ConversationID: ev.ConversationID, OtherParticipant: ev.OtherParticipant,
				FinalMessage: ev.FinalMessage, EndedAtTick: ev.EventTick(),
			})
		case domain.ConversationEndingSeenEvent:
			endings := e.unseenEndings[ev.Agent]
			filtered := endings[:0]
			for _, ending := range endings {
				if ending.ConversationID != ev.ConversationID {
					filtered = append(filtered, ending)
				}
			}
			if len(filtered) == 0 {
				delete(e.unseenEndings, ev.Agent)
			} else {
				e.unseenEndings[ev.Agent] = filtered
			}
		}
	}
}

func (e *Engine) updateRecentArrivals(events []domain.DomainEvent) {
	arrivals := make(map[domain.AgentName]struct{})
	for _, event := range events {
		switch ev := event.(type) {
		case domain.AgentMovedEvent:
			arrivals[ev.Agent] = struct{}{}
		case domain.ConversationMovedEvent:
			for _, name := range ev.Participants {
				arrivals[name] = struct{}{}
			}
		}
	}
	e.recentArrivals = arrivals
}

func (e *Engine) saveSnapshot() error {
	snapshot := storage.VillageSnapshot{
		World: e.world, Agents: e.agents.ToState(), Conversations: e.convosSnapshot(),
		PendingInvites: e.invitesSnapshot(), Scheduler: e.scheduler.ToState(), UnseenEndings: e.unseenEndings,
	}
	if err := e.snapshots.Save(snapshot); err != nil {
		return err
	}
	archived, err := e.archive.ArchiveEventsBefore(e.tick)
	if err != nil {
		return fmt.Errorf("archive events before tick %d: %w", e.tick, err)
	}
	if archived > 0 {
		slog.Info("archived events", "count", archived, "before_tick", e.tick)
	}
	return nil
}

func (e *Engine) fireCallbacks(result runtime.TickResult) {
	for _, cb := range e.tickCallbacks {
		e.safeCall(func() { cb(result) })
	}
	for _, event := range result.Events {
		for _, cb := range e.eventCallbacks {
			ev := event
			callback := cb
			e.safeCall(func() { callback(ev) })
		}
	}
}

func (e *Engine) safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("callback panicked", "recovered", r)
		}
	}()
	f()
}

func (e *Engine) convosSnapshot() map[domain.ConversationID]domain.Conversation {
	conversations, _ := e.convos.ToState()
	return conversations
}

func (e *Engine) invitesSnapshot() map[domain.AgentName]domain.Invitation {
	_, invites := e.convos.ToState()
	return invites
}

// Run drives TickOnce in a loop until Stop is called or ctx is
// cancelled. Between ticks it checks Pause; while paused it waits
// without advancing.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	e.wg.Add(1)
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		default:
		}

		if e.isPaused() {
			e.waitOrStop(100 * time.Millisecond)
			continue
		}

		if _, err := e.TickOnce(ctx); err != nil {
			slog.Error("tick failed", "error", err)
			e.waitOrStop(time.Second)
		}
	}
}

func (e *Engine) waitOrStop(d time.Duration) {
	select {
	case <-e.stopCh:
	case <-time.After(d):
	}
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauseReq
}

// Pause suspends the run loop after its current tick completes.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseReq = true
}

// Resume lifts a prior Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseReq = false
}

// Stop signals the run loop to exit and waits for it to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	ch := e.stopCh
	e.mu.Unlock()
	select {
	case <-ch:
	default:
		close(ch)
	}
	e.wg.Wait()
}

// Shutdown stops the run loop if active and closes the durable stores.
func (e *Engine) Shutdown() error {
	e.Stop()
	return e.eventStore.Close()
}

type pacing struct {
	conversationTurn time.Duration
	soloTurn         time.Duration
	inviteResponse   time.Duration
}

func defaultPacing() pacing {
	return pacing{
		conversationTurn: scheduler.ConversationPaceMinutes * time.Minute,
		soloTurn:         scheduler.SoloPaceMinutes * time.Minute,
		inviteResponse:   scheduler.InviteResponseMinutes * time.Minute,
	}
}

type noopCompaction struct{}

func (noopCompaction) ExecuteCompact(_ context.Context, agent domain.AgentSnapshot, _ bool) (int, error) {
	return agent.TokenUsage.SessionTokens, nil
}

func cloneAgents(src map[domain.AgentName]domain.AgentSnapshot) map[domain.AgentName]domain.AgentSnapshot {
	dst := make(map[domain.AgentName]domain.AgentSnapshot, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneConversations(src map[domain.ConversationID]domain.Conversation) map[domain.ConversationID]domain.Conversation {
	dst := make(map[domain.ConversationID]domain.Conversation, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func clonePendingInvites(src map[domain.AgentName]domain.Invitation) map[domain.AgentName]domain.Invitation {
	dst := make(map[domain.AgentName]domain.Invitation, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneUnseenEndings(src map[domain.AgentName][]domain.UnseenConversationEnding) map[domain.AgentName][]domain.UnseenConversationEnding {
	dst := make(map[domain.AgentName][]domain.UnseenConversationEnding, len(src))
	for k, v := range src {
		cp := make([]domain.UnseenConversationEnding, len(v))
		copy(cp, v)
		dst[k] = cp
	}
	return dst
}
