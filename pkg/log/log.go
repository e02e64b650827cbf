// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/notify"
)

// 🎨 Display configuration
const (
	lineIndent  = 4  // spaces to indent operation lines
	opWidth     = 14 // width for "kind op"
	idWidth     = 30 // width for the entity id
	statusWidth = 12 // width for the outcome
)

// 🎯 OperationLine is one settled mutation as printed on the console
type OperationLine struct {
	Kind     string // entity kind
	Op       string // create/update/delete
	ID       string // id the operation settled on
	TempID   string // temporary id, for creates
	Outcome  string // committed/rolled back/vanished
	Attempts int    // gateway attempts
	Err      string // failure reason
}

// 🎯 Logger prints notifications to a console and mirrors them to zerolog.
// It is the terminal implementation of notify.Notifier.
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
	lines   []OperationLine
}

var _ notify.Notifier = (*Logger)(nil)

// 🏭 New creates a new logger
func New(console io.Writer, level zerolog.Level) *Logger {
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(level)
	return &Logger{
		zlog:    zlog,
		console: console,
	}
}

// NewWithLogger creates a logger that mirrors to an existing zerolog logger
func NewWithLogger(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog, console: console}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		panic("logger not found in context")
	}
	return logger
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 formatOperation formats a settled operation for display
func (l *Logger) formatOperation(op OperationLine) string {
	var symbol rune
	var symbolColor color.Attribute
	switch op.Outcome {
	case "committed":
		symbol = '✓'
		symbolColor = color.FgGreen
	case "rolled back":
		symbol = '✗'
		symbolColor = color.FgRed
	case "vanished":
		symbol = '•'
		symbolColor = color.FgYellow
	default:
		symbol = '-'
		symbolColor = color.FgCyan
	}

	id := op.ID
	if op.TempID != "" && op.TempID != op.ID {
		id = op.TempID + " → " + op.ID
	}

	line := fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", lineIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		color.New(color.FgBlue).Sprint(fmt.Sprintf("%-*s", opWidth, op.Kind+" "+op.Op)),
		fmt.Sprintf("%-*s", idWidth, id),
		fmt.Sprintf("%-*s", statusWidth, op.Outcome))
	if op.Attempts > 1 {
		line += color.New(color.Faint).Sprintf(" (%d attempts)", op.Attempts)
	}
	if op.Err != "" {
		line += " " + color.New(color.FgRed).Sprint(op.Err)
	}
	return line
}

// 📝 LogOperation prints a settled operation
func (l *Logger) LogOperation(ctx context.Context, op OperationLine) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, op)
	fmt.Fprintln(l.console, l.formatOperation(op))

	l.zlog.Info().
		Str("kind", op.Kind).
		Str("op", op.Op).
		Str("id", op.ID).
		Str("temp_id", op.TempID).
		Str("outcome", op.Outcome).
		Int("attempts", op.Attempts).
		Str("error", op.Err).
		Msg("operation settled")
}

// Operations returns every operation line printed so far
func (l *Logger) Operations() []OperationLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]OperationLine(nil), l.lines...)
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("optimist")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message. Empty messages are not shown.
func (l *Logger) Success(msg string) {
	if msg == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Actionable logs a message offering an action for a limited time
func (l *Logger) Actionable(msg string, action notify.Action, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "↩️  %s %s %s\n",
		color.New(color.FgMagenta).Sprint(msg),
		color.New(color.Bold).Sprintf("[%s]", action.Label),
		color.New(color.Faint).Sprintf("%s", duration))
	l.zlog.Info().Str("action", action.Label).Dur("duration", duration).Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}
