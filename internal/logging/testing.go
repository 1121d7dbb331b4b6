package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger whose entries are kept in memory for assertions.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger records every level, trace included, with the default
// redaction config.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// matching returns the entries at level whose message contains msg.
func (t *TestLogger) matching(level zapcore.Level, msg string) []observer.LoggedEntry {
	var out []observer.LoggedEntry
	for _, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			out = append(out, e)
		}
	}
	return out
}

// AssertLogged fails tb unless an entry at level mentions msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if len(t.matching(level, msg)) == 0 {
		tb.Errorf("no %v entry containing %q among %d entries", level, msg, t.logs.Len())
	}
}

// AssertNotLogged fails tb if an entry at level mentions msg.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := len(t.matching(level, msg)); n > 0 {
		tb.Errorf("%d unexpected %v entries containing %q", n, level, msg)
	}
}

// AssertNoInputLonger fails tb if any logged user input keeps more than
// limit runes ahead of the truncation marker.
func (t *TestLogger) AssertNoInputLonger(tb testing.TB, limit int) {
	tb.Helper()
	for _, e := range t.logs.All() {
		for _, f := range e.Context {
			if f.Key != "input" || f.Type != zapcore.StringType {
				continue
			}
			kept, _, _ := strings.Cut(f.String, "…(")
			if n := len([]rune(kept)); n > limit {
				tb.Errorf("%q logged %d input runes, limit %d", e.Message, n, limit)
			}
		}
	}
}
