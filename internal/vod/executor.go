package vod

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/videocat/internal/metrics"
	"github.com/ManuGH/videocat/internal/procgroup"
	"github.com/rs/zerolog"
)

// DefaultExecutor implements Exec by running ffmpeg with progress
// supervision. A process that stops advancing for StallTimeout is killed
// together with its process group.
type DefaultExecutor struct {
	Logger       zerolog.Logger
	StartupGrace time.Duration
	StallTimeout time.Duration
	Tick         time.Duration
}

func (e *DefaultExecutor) Run(ctx context.Context, name string, args []string) error {
	cfg := ProgressWatchConfig{
		StartupGrace: e.StartupGrace,
		StallTimeout: e.StallTimeout,
		Tick:         e.Tick,
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = 30 * time.Second
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 5 * time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 5 * time.Second
	}

	stderr, exitCode, err := runFFmpegWithProgress(ctx, name, args, cfg, e.Logger)
	if err == nil {
		return nil
	}
	var fail *EncodingFailure
	if errors.As(err, &fail) {
		return err
	}
	return &EncodingFailure{ExitCode: exitCode, Stderr: tail(stderr, stderrTail), Err: err}
}

// FFmpegProgress is one flushed block of `-progress` output.
type FFmpegProgress struct {
	Frame     int
	OutTimeUs int64
	TotalSize int64
	Speed     string
}

func (p FFmpegProgress) hasAdvanced(prev FFmpegProgress) bool {
	return p.OutTimeUs > prev.OutTimeUs || p.TotalSize > prev.TotalSize || p.Frame > prev.Frame
}

type ProgressWatchConfig struct {
	StartupGrace time.Duration
	StallTimeout time.Duration
	Tick         time.Duration
}

func runFFmpegWithProgress(
	ctx context.Context,
	bin string,
	args []string,
	cfg ProgressWatchConfig,
	logger zerolog.Logger,
) (stderr string, exitCode int, err error) {
	fullArgs := append([]string{"-nostdin", "-progress", "pipe:1"}, args...)
	cmd := exec.Command(bin, fullArgs...)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", -1, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", -1, fmt.Errorf("failed to start %s: %w", bin, err)
	}

	progressCh := make(chan FFmpegProgress, 100)
	go func() {
		defer close(progressCh)
		parseFFmpegProgress(stdout, progressCh)
	}()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	watchErr := watchFFmpegProgress(ctx, done, progressCh, cmd, cfg, logger)

	exitCode = -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	return stderrBuf.String(), exitCode, watchErr
}

// watchFFmpegProgress returns once the process has exited. On cancellation
// or stall it kills the group and still waits for Wait to return.
func watchFFmpegProgress(
	ctx context.Context,
	done <-chan error,
	progressCh <-chan FFmpegProgress,
	cmd *exec.Cmd,
	cfg ProgressWatchConfig,
	logger zerolog.Logger,
) error {
	start := time.Now()
	lastProgressAt := start
	var last FFmpegProgress

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err

		case <-ctx.Done():
			_ = procgroup.Kill(cmd)
			<-done
			return ctx.Err()

		case p, ok := <-progressCh:
			if !ok {
				progressCh = nil
				continue
			}
			if p.hasAdvanced(last) {
				last = p
				lastProgressAt = time.Now()
			}

		case <-ticker.C:
			if time.Since(start) < cfg.StartupGrace {
				continue
			}
			if time.Since(lastProgressAt) > cfg.StallTimeout {
				metrics.EncoderStalls.Inc()
				logger.Error().
					Str("event", "encoder.stalled").
					Dur("since_progress", time.Since(lastProgressAt)).
					Int64("last_out_time_us", last.OutTimeUs).
					Int64("last_total_size", last.TotalSize).
					Str("last_speed", last.Speed).
					Msg("encoder stalled, killing process group")
				_ = procgroup.Kill(cmd)
				<-done
				return ErrStalled
			}
		}
	}
}

// parseFFmpegProgress reads key=value lines from r and sends updates to ch.
func parseFFmpegProgress(r io.Reader, ch chan<- FFmpegProgress) {
	scanner := bufio.NewScanner(r)
	var current FFmpegProgress

	for scanner.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		switch key {
		case "frame":
			if v, err := strconv.Atoi(val); err == nil {
				current.Frame = v
			}
		case "out_time_us":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.OutTimeUs = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.TotalSize = v
			}
		case "speed":
			current.Speed = val
		case "progress":
			select {
			case ch <- current:
			default:
				// watcher is gone or behind; only the latest block matters
			}
		}
	}
	_, _ = io.Copy(io.Discard, r)
}
