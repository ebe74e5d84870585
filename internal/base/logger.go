// Copyright 2024 The Shale author and other contributors.
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

package base

import (
	"fmt"
	"log"
	"os"
)

const logTagFmt = "%s %s"

// Logger defines an interface for writing log messages.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NewLogger returns a Logger that prefixes every message with tag. A nil
// logger falls back to the standard library logger.
func NewLogger(logger Logger, tag string) Logger {
	if logger == nil {
		return defaultLogger{tag: tag}
	}
	return taggedLogger{clog: logger, tag: tag}
}

type taggedLogger struct {
	clog Logger
	tag  string
}

func (l taggedLogger) Infof(format string, args ...interface{}) {
	l.clog.Infof(logTagFmt, l.tag, fmt.Sprintf(format, args...))
}

func (l taggedLogger) Warnf(format string, args ...interface{}) {
	l.clog.Warnf(logTagFmt, l.tag, fmt.Sprintf(format, args...))
}

func (l taggedLogger) Errorf(format string, args ...interface{}) {
	l.clog.Errorf(logTagFmt, l.tag, fmt.Sprintf(format, args...))
}

func (l taggedLogger) Fatalf(format string, args ...interface{}) {
	l.clog.Fatalf(logTagFmt, l.tag, fmt.Sprintf(format, args...))
}

type defaultLogger struct {
	tag string
}

// DefaultLogger logs to the Go stdlib logger.
var DefaultLogger = defaultLogger{tag: ""}

func (l defaultLogger) Infof(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(logTagFmt, l.tag, fmt.Sprintf(format, args...)))
}

func (l defaultLogger) Warnf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(logTagFmt, l.tag, fmt.Sprintf(format, args...)))
}

func (l defaultLogger) Errorf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(logTagFmt, l.tag, fmt.Sprintf(format, args...)))
}

func (l defaultLogger) Fatalf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(logTagFmt, l.tag, fmt.Sprintf(format, args...)))
	os.Exit(1)
}
