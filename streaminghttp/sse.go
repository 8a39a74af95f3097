package streaminghttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
)

// eventCounter feeds monotonically increasing SSE event ids. The counter is
// process-local; ids restart after a process restart, which is acceptable
// because streams are not replayable across restarts anyway.
var eventCounter atomic.Int64

func nextEventID() string {
	return strconv.FormatInt(eventCounter.Add(1), 10)
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an
// optional context. It serializes concurrent writes/flushes and avoids
// writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check after acquiring the lock to minimize races with cancellation
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes a single Server-Sent Event frame and flushes it.
// eventName may be empty, in which case the default "message" event type
// applies on the client side.
func writeSSEEvent(wf *lockedWriteFlusher, eventName string, payload []byte) error {
	if _, err := fmt.Fprintf(wf, "id: %s\n", nextEventID()); err != nil {
		return fmt.Errorf("failed to write SSE event ID: %w", err)
	}
	if eventName != "" {
		if _, err := fmt.Fprintf(wf, "event: %s\n", eventName); err != nil {
			return fmt.Errorf("failed to write SSE event name: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}

func writeSSEPing(wf *lockedWriteFlusher) error {
	return writeSSEEvent(wf, "ping", []byte("{}"))
}
