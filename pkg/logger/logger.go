package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Logger receives progress events from the long-running phases (walk,
// partition, transfer, verify).
type Logger interface {
	PhaseStart(phase string, totalItems int)
	ItemProcessed(phase string, item string, action string)
	PhaseComplete(phase string, processedItems int)
}

// Actions reported through ItemProcessed.
const (
	ActionCopy     = "copy"
	ActionMkdir    = "mkdir"
	ActionVerify   = "verify"
	ActionSkip     = "skip"
	ActionFail     = "fail"
	ActionMismatch = "mismatch"
)

type VerboseLogger struct {
	Log *slog.Logger
}

func (l *VerboseLogger) logger() *slog.Logger {
	if l.Log == nil {
		return slog.Default()
	}
	return l.Log
}

func (l *VerboseLogger) PhaseStart(phase string, totalItems int) {
	l.logger().Info("phase started", "phase", phase, "items", totalItems)
}

func (l *VerboseLogger) ItemProcessed(phase string, item string, action string) {
	level := slog.LevelDebug
	if action == ActionFail || action == ActionMismatch {
		level = slog.LevelWarn
	}
	l.logger().Log(context.Background(), level, action, "phase", phase, "item", item)
}

func (l *VerboseLogger) PhaseComplete(phase string, processedItems int) {
	l.logger().Info("phase complete", "phase", phase, "processed", processedItems)
}

type NullLogger struct{}

func (l *NullLogger) PhaseStart(phase string, totalItems int) {}

func (l *NullLogger) ItemProcessed(phase string, item string, action string) {}

func (l *NullLogger) PhaseComplete(phase string, processedItems int) {}

// QuietLogger prints one line per non-skip action and nothing else.
type QuietLogger struct {
	Out io.Writer

	mu sync.Mutex
}

func (l *QuietLogger) PhaseStart(phase string, totalItems int) {}

func (l *QuietLogger) ItemProcessed(phase string, item string, action string) {
	if action != ActionSkip {
		l.mu.Lock()
		defer l.mu.Unlock()
		fmt.Fprintf(l.Out, "%s: %s\n", action, item)
	}
}

func (l *QuietLogger) PhaseComplete(phase string, processedItems int) {}
