package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyCommand is returned when Run is given no argv
var ErrEmptyCommand = errors.New("empty command")

// State of a streamed process
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the outcome of a streamed process.
// ExitCode is only meaningful when State is StateCompleted. A cancelled run has ExitCode -1.
type Status struct {
	State    State `json:"state"`
	ExitCode int   `json:"exitCode"`
}

// Success is true if the process ran to completion and exited with code 0
func (s Status) Success() bool {
	return s.State == StateCompleted && s.ExitCode == 0
}

func (s Status) String() string {
	if s.State == StateCompleted {
		return fmt.Sprintf("completed (exit code %v)", s.ExitCode)
	}
	return s.State.String()
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// CleanLine removes carriage returns, ANSI escape sequences, and trailing whitespace
func CleanLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = ansiEscape.ReplaceAllString(s, "")
	return strings.TrimRight(s, " \t\n\v\f")
}

// Run starts argv, and calls onLine for every line that the process writes to stdout or stderr.
// The two streams share a single pipe, so their lines arrive in the order they were written.
// Output is decoded as UTF-8, with invalid bytes replaced by U+FFFD.
//
// When ctx is done, the process is asked to terminate, and Run returns a StateCancelled status
// immediately, without waiting for the process to exit. Output written after that point is
// read and discarded. Killing a process that ignores the request is up to the caller.
// A non-zero exit code is not an error. An error is only returned if the process could not be started.
func Run(ctx context.Context, argv []string, onLine func(line string)) (Status, error) {
	if len(argv) == 0 {
		return Status{}, ErrEmptyCommand
	}
	r, w, err := os.Pipe()
	if err != nil {
		return Status{}, err
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = newSysProcAttr()
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return Status{}, fmt.Errorf("failed to start %v: %w", argv[0], err)
	}
	// The child has its own copy of the write end. Our copy must go, or we'll never see EOF.
	w.Close()

	lines := make(chan string)
	done := make(chan struct{})
	go readLines(r, lines, done)

	// On cancellation the read end stays open until the process has exited, so that
	// output from its termination handler never hits a broken pipe.
	// exited is non-nil if cmd.Wait is already running.
	cancelled := func(exited <-chan error) (Status, error) {
		close(done)
		terminate(cmd.Process)
		go func() {
			if exited != nil {
				<-exited
			} else {
				cmd.Wait()
			}
			r.Close()
		}()
		return Status{State: StateCancelled, ExitCode: -1}, nil
	}

	for {
		if ctx.Err() != nil {
			return cancelled(nil)
		}
		select {
		case <-ctx.Done():
			return cancelled(nil)
		case line, ok := <-lines:
			if !ok {
				return wait(ctx, cmd, r, cancelled)
			}
			onLine(line)
		}
	}
}

// wait reaps the process after its output has been closed
func wait(ctx context.Context, cmd *exec.Cmd, r io.Closer, cancelled func(exited <-chan error) (Status, error)) (Status, error) {
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()
	var err error
	select {
	case err = <-waitErr:
	case <-ctx.Done():
		return cancelled(waitErr)
	}
	r.Close()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Status{State: StateCompleted, ExitCode: exitErr.ExitCode()}, nil
		}
		return Status{}, err
	}
	return Status{State: StateCompleted, ExitCode: 0}, nil
}

// readLines sends every line to lines until done is closed. After that, output is read
// and discarded until EOF, so that the process never blocks on a full pipe.
func readLines(r io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	br := bufio.NewReader(transform.NewReader(r, unicode.UTF8.NewDecoder()))
	discard := false
	for {
		s, err := br.ReadString('\n')
		if s != "" && !discard {
			select {
			case lines <- CleanLine(s):
			case <-done:
				discard = true
			}
		}
		if err != nil {
			return
		}
	}
}

// Job is a process that is being streamed on its own goroutine
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
	status Status
	err    error
}

// Start runs argv on a new goroutine. See Run for the semantics of onLine.
// onLine is called from that goroutine.
func Start(ctx context.Context, argv []string, onLine func(line string)) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	j.state.Store(int32(StateRunning))
	go func() {
		defer close(j.done)
		defer cancel()
		j.status, j.err = Run(ctx, argv, onLine)
		if j.err != nil {
			// The process never ran
			j.status = Status{State: StateIdle, ExitCode: -1}
		}
		j.state.Store(int32(j.status.State))
	}()
	return j
}

// Cancel asks the process to terminate. It does not wait.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job has finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// State returns the current state of the job
func (j *Job) State() State {
	return State(j.state.Load())
}

// Wait blocks until the job has finished, and returns its outcome.
// The error is non-nil only if the process could not be started, in which case the state is StateIdle.
func (j *Job) Wait() (Status, error) {
	<-j.done
	return j.status, j.err
}
