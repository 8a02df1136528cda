package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/erenbertr/chatrelay/internal/domain"
)

// DefaultSimulateDelay is the inter-chunk pause used when a backend has no
// native streaming and the final text is replayed as word groups.
const DefaultSimulateDelay = 30 * time.Millisecond

// SimulateStream splits text into word groups of 3 to 5 words and sends
// each as a delta on out, pausing delay between groups so downstream
// consumers see uniform streaming behavior. The usage event, when non-nil,
// is sent after the final group. Sending stops when ctx is canceled.
func SimulateStream(ctx context.Context, out chan<- domain.ProviderEvent, text string, usage *domain.Usage, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultSimulateDelay
	}

	words := strings.Fields(text)
	for i, n := 0, 0; i < len(words); i, n = i+groupSize(n), n+1 {
		end := i + groupSize(n)
		if end > len(words) {
			end = len(words)
		}
		group := strings.Join(words[i:end], " ")
		if end < len(words) {
			group += " "
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		select {
		case <-ctx.Done():
			return
		case out <- domain.ProviderEvent{Delta: group}:
		}
	}

	if usage != nil {
		select {
		case <-ctx.Done():
		case out <- domain.ProviderEvent{Usage: usage}:
		}
	}
}

// groupSize cycles 3, 4, 5 so chunk boundaries are deterministic for tests
// while still varying like real streaming output.
func groupSize(n int) int {
	return 3 + n%3
}
