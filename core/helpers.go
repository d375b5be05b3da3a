package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-duet/core/llms"
)

func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// repeatsRecent reports whether text restates one of the last
// llms.AvoidRepeatingLast history entries word for word.
func repeatsRecent(text string, history []llms.HistoryEntry) bool {
	normalized := normalizeText(text)
	start := max(len(history)-llms.AvoidRepeatingLast, 0)
	for _, entry := range history[start:] {
		if normalizeText(entry.Text) == normalized {
			return true
		}
	}
	return false
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
