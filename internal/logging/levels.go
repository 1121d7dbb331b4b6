package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel is a custom level below Debug for per-detector and per-tier
// detail. Value: -2 (Debug is -1, Info is 0). Almost always filtered in
// production.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name, supporting "trace". An empty
// string is Info.
func LevelFromString(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
