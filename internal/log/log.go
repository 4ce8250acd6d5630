// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is a small leveled printf-style logger backed by log/slog.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	ErrorLevel
)

func (l Level) slog() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(os.Stderr, false)
}

// SetLogLevel changes the minimum level of the package logger.
func SetLogLevel(l Level) {
	level.Set(l.slog())
}

// SetOutput redirects the package logger to w, as JSON when asJSON is set.
func SetOutput(w io.Writer, asJSON bool) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if asJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return logger.Load()
}

func Debug(format string, args ...any) {
	logf(context.Background(), Logger(), slog.LevelDebug, format, args...)
}

func Info(format string, args ...any) {
	logf(context.Background(), Logger(), slog.LevelInfo, format, args...)
}

func Warn(format string, args ...any) {
	logf(context.Background(), Logger(), slog.LevelWarn, format, args...)
}

func Error(format string, args ...any) {
	logf(context.Background(), Logger(), slog.LevelError, format, args...)
}

func logf(ctx context.Context, l *slog.Logger, lvl slog.Level, format string, args ...any) {
	if !l.Enabled(ctx, lvl) {
		return
	}
	l.Log(ctx, lvl, fmt.Sprintf(format, args...))
}

type ctxKey struct{}

// WithContext returns ctx carrying a logger derived from the package logger
// (or the one already in ctx) with attrs attached.
func WithContext(ctx context.Context, attrs ...slog.Attr) context.Context {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).With(args...))
}

// FromContext returns the logger stored in ctx, or the package logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return Logger()
}

// CtxInfo logs through the logger carried by ctx.
func CtxInfo(ctx context.Context, format string, args ...any) {
	logf(ctx, FromContext(ctx), slog.LevelInfo, format, args...)
}

func CtxDebug(ctx context.Context, format string, args ...any) {
	logf(ctx, FromContext(ctx), slog.LevelDebug, format, args...)
}

func CtxError(ctx context.Context, format string, args ...any) {
	logf(ctx, FromContext(ctx), slog.LevelError, format, args...)
}

func RunID(id string) slog.Attr {
	return slog.String("run_id", id)
}

func Step(name string) slog.Attr {
	return slog.String("step", name)
}

func Err(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
