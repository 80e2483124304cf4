//go:build !windows

package shell

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type lineCollector struct {
	lock  sync.Mutex
	lines []string
}

func (c *lineCollector) add(line string) {
	c.lock.Lock()
	c.lines = append(c.lines, line)
	c.lock.Unlock()
}

func (c *lineCollector) get() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string{}, c.lines...)
}

func TestCleanLine(t *testing.T) {
	require.Equal(t, "hello world", CleanLine("\x1b[1;32mhello\x1b[0m world  \r\n"))
	require.Equal(t, "epoch 1/10", CleanLine("\x1b[?25lepoch 1/10\x1b[K\r"))
	require.Equal(t, "progress 50%", CleanLine("progress\r 50%\r\n"))
	require.Equal(t, "", CleanLine("\n"))
}

func TestRunLines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	c := &lineCollector{}
	status, err := Run(context.Background(), []string{"sh", "-c", `printf 'one\r\n\033[31mtwo\033[0m\nthree   \n'`}, c.add)
	require.NoError(t, err)
	require.Equal(t, Status{State: StateCompleted, ExitCode: 0}, status)
	require.True(t, status.Success())
	require.Equal(t, []string{"one", "two", "three"}, c.get())
}

func TestRunMergesStderr(t *testing.T) {
	c := &lineCollector{}
	status, err := Run(context.Background(), []string{"sh", "-c", "echo out; echo err 1>&2; echo last"}, c.add)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, status.State)
	require.Equal(t, []string{"out", "err", "last"}, c.get())
}

func TestRunNoTrailingNewline(t *testing.T) {
	c := &lineCollector{}
	_, err := Run(context.Background(), []string{"sh", "-c", "printf 'a\\nb'"}, c.add)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, c.get())
}

func TestRunInvalidUTF8(t *testing.T) {
	c := &lineCollector{}
	_, err := Run(context.Background(), []string{"sh", "-c", `printf '\377abc\n'`}, c.add)
	require.NoError(t, err)
	require.Equal(t, []string{"\ufffdabc"}, c.get())
}

func TestRunExitCode(t *testing.T) {
	c := &lineCollector{}
	status, err := Run(context.Background(), []string{"sh", "-c", "echo failing; exit 3"}, c.add)
	require.NoError(t, err)
	require.Equal(t, Status{State: StateCompleted, ExitCode: 3}, status)
	require.False(t, status.Success())
	require.Equal(t, "completed (exit code 3)", status.String())
}

func TestRunSpawnFailure(t *testing.T) {
	_, err := Run(context.Background(), []string{"/nonexistent/binary/xyz"}, func(string) {})
	require.Error(t, err)
	_, err = Run(context.Background(), nil, func(string) {})
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &lineCollector{}
	status, err := Run(ctx, []string{"sh", "-c", "echo hi; sleep 10"}, c.add)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, status.State)
	require.Equal(t, -1, status.ExitCode)
	require.Empty(t, c.get())
}

func TestRunCancel(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "terminated")
	script := `trap 'echo bye > "` + marker + `"; exit 0' TERM; echo ready; while true; do sleep 0.05; done`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &lineCollector{}
	start := time.Now()
	status, err := Run(ctx, []string{"sh", "-c", script}, func(line string) {
		c.add(line)
		if line == "ready" {
			cancel()
		}
	})
	require.NoError(t, err)
	require.Equal(t, Status{State: StateCancelled, ExitCode: -1}, status)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, []string{"ready"}, c.get())

	// The process received a graceful termination request
	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

// A termination handler that writes output must be able to finish, even though Run has already returned
func TestRunCancelHandlerWritesOutput(t *testing.T) {
	for i := 0; i < 10; i++ {
		marker := filepath.Join(t.TempDir(), "checkpoint")
		script := `trap 'echo saving checkpoint; echo more output; touch "` + marker + `"; exit 0' TERM; echo ready; while true; do sleep 0.05; done`

		ctx, cancel := context.WithCancel(context.Background())
		c := &lineCollector{}
		status, err := Run(ctx, []string{"sh", "-c", script}, func(line string) {
			c.add(line)
			if line == "ready" {
				cancel()
			}
		})
		cancel()
		require.NoError(t, err)
		require.Equal(t, StateCancelled, status.State)
		// Nothing is delivered after cancellation
		require.Equal(t, []string{"ready"}, c.get())

		require.Eventually(t, func() bool {
			_, err := os.Stat(marker)
			return err == nil
		}, 5*time.Second, 20*time.Millisecond, "iteration %v", i)
	}
}

func TestJob(t *testing.T) {
	c := &lineCollector{}
	j := Start(context.Background(), []string{"sh", "-c", "echo a; echo b"}, c.add)
	status, err := j.Wait()
	require.NoError(t, err)
	require.Equal(t, StateCompleted, status.State)
	require.Equal(t, StateCompleted, j.State())
	require.Equal(t, []string{"a", "b"}, c.get())
	<-j.Done()

	j = Start(context.Background(), []string{"sh", "-c", "echo started; sleep 10"}, func(string) {})
	require.Equal(t, StateRunning, j.State())
	j.Cancel()
	select {
	case <-j.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish after Cancel")
	}
	status, err = j.Wait()
	require.NoError(t, err)
	require.Equal(t, StateCancelled, status.State)
	require.Equal(t, StateCancelled, j.State())

	// A process that never started is not completed
	j = Start(context.Background(), []string{"/nonexistent/binary/xyz"}, func(string) {})
	status, err = j.Wait()
	require.Error(t, err)
	require.Equal(t, StateIdle, status.State)
	require.Equal(t, -1, status.ExitCode)
	require.Equal(t, StateIdle, j.State())
}

func TestOutput(t *testing.T) {
	out, err := Output("sh", "-c", "echo hi")
	require.NoError(t, err)
	require.Equal(t, "hi\n", out)

	_, err = Output("sh", "-c", "echo broken >&2; exit 2")
	require.Error(t, err)
	ev, ok := err.(ExitErrorVerbose)
	require.True(t, ok)
	require.Equal(t, "broken\n", ev.Error())
	require.Equal(t, 2, ev.ExitCode())
}
