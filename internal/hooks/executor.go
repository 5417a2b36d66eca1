package hooks

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"os/exec"
	"time"
)

// OutputWaitDelay bounds how long output is still collected after a script
// exits. Processes it left running in the background may hold the output
// open; they are not waited for.
const OutputWaitDelay = 2 * time.Second

// maxLineChunk is the longest line handed out in one piece; longer lines are
// split.
const maxLineChunk = 64 * 1024

// Process is a started hook script.
type Process interface {
	// Lines yields combined stdout and stderr, one line at a time, as the
	// script produces it. It ends once the script has exited and its output
	// is closed, or OutputWaitDelay after the exit at the latest.
	Lines() iter.Seq[string]
	// Wait discards any output Lines did not read and returns the exit
	// status; a non-zero exit is an error.
	Wait() error
}

// Executor starts hook scripts.
type Executor interface {
	Start(ctx context.Context, path string, env []string) (Process, error)
}

// ExecExecutor runs scripts as child processes of the deployer.
type ExecExecutor struct{}

func (ExecExecutor) Start(ctx context.Context, path string, env []string) (Process, error) {
	r, w := io.Pipe()

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = env
	// A writer that is not an *os.File makes exec own the OS pipe, so Wait
	// can close it once the script exits and the delay has passed.
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.WaitDelay = OutputWaitDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}

	p := &execProcess{output: r, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		w.Close()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	output *io.PipeReader
	done   chan struct{}
	err    error
}

func (p *execProcess) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		reader := bufio.NewReaderSize(p.output, maxLineChunk)
		for {
			line, _, err := reader.ReadLine()
			if err != nil {
				return
			}
			if !yield(string(line)) {
				return
			}
		}
	}
}

func (p *execProcess) Wait() error {
	// The copy into the pipe only finishes once someone reads it.
	_, _ = io.Copy(io.Discard, p.output)
	<-p.done

	// Output still held open by background children is not a script failure.
	if errors.Is(p.err, exec.ErrWaitDelay) {
		return nil
	}
	return p.err
}
