package slog

import (
	"context"
	"io"
	stdslog "log/slog"

	"github.com/unkn0wn-root/transcache"
)

var _ transcache.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New builds a JSON slog logger writing to w at level.
func New(w io.Writer, level string) (Logger, error) {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return Logger{}, err
	}
	h := stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: lvl})
	return Logger{L: stdslog.New(h)}, nil
}

func (s Logger) Debug(msg string, f transcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelDebug, msg, attrs(f)...)
}
func (s Logger) Info(msg string, f transcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelInfo, msg, attrs(f)...)
}
func (s Logger) Warn(msg string, f transcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelWarn, msg, attrs(f)...)
}
func (s Logger) Error(msg string, f transcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelError, msg, attrs(f)...)
}

func attrs(f transcache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
