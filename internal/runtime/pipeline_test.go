package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addEffectPhase struct {
	BasePhase
}

func newAddEffectPhase(name string, effect domain.Effect) Phase {
	p := addEffectPhase{}
	p.BasePhase = NewBasePhase(name, func(_ context.Context, tc TickContext) (TickContext, error) {
		return tc.WithEffect(effect), nil
	})
	return p
}

func newFailingPhase(name string, err error) Phase {
	p := addEffectPhase{}
	p.BasePhase = NewBasePhase(name, func(_ context.Context, tc TickContext) (TickContext, error) {
		return tc, err
	})
	return p
}

func TestPhaseName_StripsSuffixAndSnakeCases(t *testing.T) {
	assert.Equal(t, "wake_check", phaseName("WakeCheckPhase"))
	assert.Equal(t, "apply_effects", phaseName("ApplyEffectsPhase"))
	assert.Equal(t, "schedule", phaseName("SchedulePhase"))
}

func TestTickPipeline_ExecutesPhasesInOrder(t *testing.T) {
	tc := NewTickContext(1, time.Now(), domain.TimeSnapshot{}, domain.WorldSnapshot{}, nil, nil, nil, nil)

	pipeline := NewTickPipeline(
		newAddEffectPhase("WakeCheckPhase", domain.AgentWakeEffect{Agent: "Sage"}),
		newAddEffectPhase("SchedulePhase", domain.AgentWakeEffect{Agent: "River"}),
	)

	result, err := pipeline.Execute(context.Background(), tc)
	require.NoError(t, err)
	assert.Len(t, result.Effects, 2)

	metrics := pipeline.Metrics()
	require.NotNil(t, metrics)
	assert.Equal(t, 2, metrics.EffectsCount)
	assert.Contains(t, metrics.PhaseDurations, "wake_check")
	assert.Contains(t, metrics.PhaseDurations, "schedule")
}

func TestTickPipeline_PhaseFailureAbortsAndWraps(t *testing.T) {
	tc := NewTickContext(1, time.Now(), domain.TimeSnapshot{}, domain.WorldSnapshot{}, nil, nil, nil, nil)
	boom := errors.New("boom")

	pipeline := NewTickPipeline(
		newAddEffectPhase("WakeCheckPhase", domain.AgentWakeEffect{Agent: "Sage"}),
		newFailingPhase("SchedulePhase", boom),
		newAddEffectPhase("AgentTurnPhase", domain.AgentWakeEffect{Agent: "River"}),
	)

	_, err := pipeline.Execute(context.Background(), tc)
	require.Error(t, err)

	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "schedule", phaseErr.PhaseName)
	assert.ErrorIs(t, err, boom)
}

func TestTickPipeline_GetPhaseByName(t *testing.T) {
	pipeline := NewTickPipeline(newAddEffectPhase("WakeCheckPhase", domain.AgentWakeEffect{Agent: "Sage"}))
	assert.NotNil(t, pipeline.Phase("wake_check"))
	assert.Nil(t, pipeline.Phase("nonexistent"))
}
