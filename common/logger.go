// Copyright © 2017 DataMovement Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"sync"
	"time"
)

// ILogger is the minimal logging surface every engine component depends on. Kept as
// an interface (rather than a concrete *log.Logger dependency) so tests can swap in
// a no-op or buffering logger without touching call sites — the same shape as the
// teacher's common.ILogger.
type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
}

// NopLogger discards everything. Used as the default when a caller constructs a
// Manager without supplying a logger.
type NopLogger struct{}

func (NopLogger) ShouldLog(LogLevel) bool  { return false }
func (NopLogger) Log(LogLevel, string)     {}

// JobLogger writes one text log per transfer, gated by a minimum LogLevel, the way
// the teacher's jobLogger writes one log per JobID. It wraps any io.WriteCloser
// rather than opening files itself, so callers can redirect to a rotation-aware
// sink without this package knowing about file paths.
type JobLogger struct {
	minimumLevel LogLevel
	mu           sync.Mutex
	out          io.WriteCloser
	logger       *log.Logger
}

func NewJobLogger(minimumLevel LogLevel, out io.WriteCloser) *JobLogger {
	jl := &JobLogger{minimumLevel: minimumLevel, out: out}
	if minimumLevel == ELogLevel.None() {
		return jl
	}
	jl.logger = log.New(out, "", log.LstdFlags|log.LUTC)
	jl.logger.Println("EngineVersion", EngineVersion)
	jl.logger.Println("OS-Environment", runtime.GOOS)
	jl.logger.Println("OS-Architecture", runtime.GOARCH)
	jl.logger.Println(fmt.Sprintf("Log times are in UTC. Local time is %s", time.Now().Format("2 Jan 2006 15:04:05")))
	return jl
}

func (jl *JobLogger) ShouldLog(level LogLevel) bool {
	if level == ELogLevel.None() {
		return false
	}
	return level <= jl.minimumLevel
}

func (jl *JobLogger) Log(level LogLevel, msg string) {
	if !jl.ShouldLog(level) {
		return
	}
	jl.mu.Lock()
	defer jl.mu.Unlock()
	jl.logger.Println(msg)
}

func (jl *JobLogger) Close() error {
	if jl.out == nil {
		return nil
	}
	return jl.out.Close()
}
