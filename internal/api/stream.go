package api

import "github.com/codeready-toolchain/tarsy/internal/tracer"

const streamBuffer = 256

// StreamTraceEvents subscribes to tr and rebroadcasts every event to
// every connected WebSocket client, until stop is closed. Run this in
// its own goroutine from cmd/village's startup.
func StreamTraceEvents(tr *tracer.Tracer, conns *ConnectionManager, stop <-chan struct{}) {
	events, unsubscribe := tr.Subscribe(streamBuffer)
	defer unsubscribe()

	for {
		select {
		case event := <-events:
			conns.Broadcast(map[string]any{"type": "trace", "event": event})
		case <-stop:
			return
		}
	}
}
