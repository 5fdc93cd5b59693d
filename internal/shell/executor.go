package shell

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const pumpChunkSize = 8192

// Result is the outcome of one command execution attempt.
//
// A non-zero exit code and a timeout are ordinary task failures carried on
// the Result; they are not errors.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Success reports whether the command completed with the platform's success
// status.
func (r *Result) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Executor runs shell commands with captured output and optional live
// streaming.
type Executor struct {
	// Console receives live output chunks when Stream is set. May be nil
	// when Stream is false.
	Console *Console

	// Stream mirrors each output chunk to the console as it arrives, in
	// addition to buffering it.
	Stream bool

	Log *zap.Logger
}

// Run launches command through the platform shell, bounded by timeout when
// timeout > 0.
//
// Stdout and stderr are pumped by independent readers so a full pipe buffer
// on one stream cannot block drainage of the other. If the timeout fires
// before the process exits, the whole process group is killed, the child is
// reaped, and the Result reports TimedOut with whatever output was captured.
//
// The returned error covers spawn and wait infrastructure failures only.
func (e *Executor) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	cmd := shellCommand(command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening stderr pipe")
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "starting command")
	}

	var stdout, stderr bytes.Buffer
	var pumps sync.WaitGroup
	pumps.Add(2)
	go e.pump(&pumps, stdoutPipe, &stdout, e.liveOut())
	go e.pump(&pumps, stderrPipe, &stderr, e.liveErr())

	// Wait must not run until both pumps have drained their pipes.
	done := make(chan error, 1)
	go func() {
		pumps.Wait()
		done <- cmd.Wait()
	}()

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-ctx.Done():
		e.kill(cmd)
		<-done
		return nil, errors.Wrap(ctx.Err(), "command cancelled")

	case <-timerC:
		e.kill(cmd)
		<-done // reap the child
		return &Result{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: -1,
			TimedOut: true,
			Duration: time.Since(start),
		}, nil

	case waitErr := <-done:
		res := &Result{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			Duration: time.Since(start),
		}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(waitErr, &exitErr) {
				return nil, errors.Wrap(waitErr, "waiting for command")
			}
			res.ExitCode = exitErr.ExitCode()
		}
		return res, nil
	}
}

// pump copies src into buf in fixed-size chunks. When live is non-nil each
// chunk is also written to the console as it arrives.
func (e *Executor) pump(wg *sync.WaitGroup, src io.Reader, buf *bytes.Buffer, live func([]byte)) {
	defer wg.Done()

	chunk := make([]byte, pumpChunkSize)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if live != nil {
				live(chunk[:n])
			}
		}
		if err != nil {
			if err != io.EOF {
				e.Log.Debug("output pump stopped", zap.Error(err))
			}
			return
		}
	}
}

func (e *Executor) liveOut() func([]byte) {
	if !e.Stream || e.Console == nil {
		return nil
	}
	return e.Console.WriteOut
}

func (e *Executor) liveErr() func([]byte) {
	if !e.Stream || e.Console == nil {
		return nil
	}
	return e.Console.WriteErr
}

// kill terminates the whole process group. Failures are logged, not
// returned; the caller still reaps the child.
func (e *Executor) kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		e.Log.Warn("failed to kill process group", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
		_ = cmd.Process.Kill()
	}
}

// shellCommand wraps command in the platform's shell indirection.
func shellCommand(command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", command)
	}
	return exec.Command("sh", "-c", command)
}
