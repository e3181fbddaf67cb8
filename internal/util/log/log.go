/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package log provides the application's structured logger. Call sites pass
// a message plus a Pairs map of structured fields; the fields are rendered
// through zerolog rather than a bespoke writer.
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Pairs is a structured field set attached to a single log line.
type Pairs map[string]interface{}

var (
	mtx        sync.Mutex
	logger     zerolog.Logger
	warnedOnce = make(map[string]bool)
)

func init() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
}

// Init configures the package logger's level and output sink. logFile, when
// non-empty, routes output through a rotating lumberjack writer instead of
// stdout.
func Init(level string, logFile string) {
	mtx.Lock()
	defer mtx.Unlock()

	var out io.Writer = os.Stdout
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	} else {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zerolog.SetGlobalLevel(levelFromString(level))
	logger = zerolog.New(out).With().Timestamp().Logger()
}

func levelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func withPairs(e *zerolog.Event, p Pairs) *zerolog.Event {
	for k, v := range p {
		e = e.Interface(k, v)
	}
	return e
}

// Trace logs at trace level.
func Trace(msg string, p Pairs) {
	withPairs(logger.Trace(), p).Msg(msg)
}

// Debug logs at debug level.
func Debug(msg string, p Pairs) {
	withPairs(logger.Debug(), p).Msg(msg)
}

// Info logs at info level.
func Info(msg string, p Pairs) {
	withPairs(logger.Info(), p).Msg(msg)
}

// Warn logs at warn level.
func Warn(msg string, p Pairs) {
	withPairs(logger.Warn(), p).Msg(msg)
}

// WarnOnce logs a warning only the first time it is seen for the given key,
// to avoid flooding logs for recurring per-request conditions (e.g. a
// persistent clock offset against one origin).
func WarnOnce(key, msg string, p Pairs) {
	mtx.Lock()
	if warnedOnce[key] {
		mtx.Unlock()
		return
	}
	warnedOnce[key] = true
	mtx.Unlock()
	Warn(msg, p)
}

// Error logs at error level.
func Error(msg string, p Pairs) {
	withPairs(logger.Error(), p).Msg(msg)
}

// Fatal logs at fatal level and exits the process.
func Fatal(code int, msg string, p Pairs) {
	withPairs(logger.Fatal(), p).Msg(msg)
	os.Exit(code)
}
