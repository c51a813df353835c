package phases

import (
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
)

func runtimeTickContext(agents map[domain.AgentName]domain.AgentSnapshot, timeSnapshot domain.TimeSnapshot) runtime.TickContext {
	return runtime.NewTickContext(timeSnapshot.Tick, time.Now(), timeSnapshot, domain.WorldSnapshot{}, agents, nil, nil, nil)
}
