package conversion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// LineSink receives one line of subprocess output as it arrives.
type LineSink func(line string)

// Runner runs one external command to completion and reports its exit
// code. An error means the process could not be run at all; a non-zero
// exit code is not an error at this layer.
type Runner interface {
	Run(ctx context.Context, name string, args []string, sink LineSink) (int, error)
}

// ProcessRunner is the exec-backed Runner. Arguments are always passed as
// an explicit argv list, never interpolated into a shell string.
type ProcessRunner struct {
	logger *zap.Logger
}

// NewProcessRunner creates a process runner.
func NewProcessRunner(logger *zap.Logger) *ProcessRunner {
	return &ProcessRunner{logger: logger}
}

// Run launches the command and waits for it to exit. If sink is non-nil,
// stdout and stderr are streamed to it line by line without buffering the
// whole output; streaming never gates completion. Run imposes no timeout
// of its own; cancellation comes from ctx.
func (r *ProcessRunner) Run(ctx context.Context, name string, args []string, sink LineSink) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var wg sync.WaitGroup
	if sink != nil {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return -1, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return -1, fmt.Errorf("failed to create stderr pipe: %w", err)
		}
		wg.Add(2)
		go r.streamLines(&wg, stdout, sink)
		go r.streamLines(&wg, stderr, sink)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%w: %v", ErrProcessLaunch, err)
	}

	// Pipes must be drained before Wait closes them.
	wg.Wait()

	var exitErr *exec.ExitError
	switch err := cmd.Wait(); {
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	case err != nil:
		return -1, fmt.Errorf("waiting for %s: %w", name, err)
	}

	return cmd.ProcessState.ExitCode(), nil
}

func (r *ProcessRunner) streamLines(wg *sync.WaitGroup, pipe io.ReadCloser, sink LineSink) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		sink(scanner.Text())
	}
}
