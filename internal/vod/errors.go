package vod

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStalled is wrapped by EncodingFailure when the progress watchdog kills ffmpeg.
	ErrStalled = errors.New("encoder stalled")
	// ErrSourceUnavailable is returned when the source file cannot be used as input.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// stderrTail bounds the amount of encoder output kept on a failure.
const stderrTail = 2048

// EncodingFailure describes a failed encoder process: nonzero exit, crash,
// stall or timeout. It is never retried.
type EncodingFailure struct {
	Resolution string
	ExitCode   int
	Stderr     string
	Err        error
}

func (e *EncodingFailure) Error() string {
	var b strings.Builder
	b.WriteString("encoding failed")
	if e.Resolution != "" {
		fmt.Fprintf(&b, " (%s)", e.Resolution)
	}
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := lastLine(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

func (e *EncodingFailure) Unwrap() error { return e.Err }

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
