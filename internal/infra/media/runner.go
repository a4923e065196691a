// Package media wraps the external tools the pipeline shells out to:
// yt-dlp for downloads, ffmpeg for audio extraction and whisper.cpp
// for transcription. Every adapter translates tool failures into the
// tagged domain errors the failure classifier understands.
package media

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// commandResult captures one external command invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct {
	timeout time.Duration
}

// Run executes one command, capturing stdout, stderr and the exit
// code. A configured timeout bounds the whole invocation; the process
// is killed when it expires.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			// Surface the deadline, not the SIGKILL exec error.
			return result, ctx.Err()
		}
		return result, err
	}

	return result, nil
}
