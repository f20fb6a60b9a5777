package queueworker_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	queueworker "github.com/infigaming-com/go-queueworker"
	"github.com/infigaming-com/go-queueworker/driver/inmem"
)

const (
	forkRoleEnv     = "WORKER_FORK_TEST_ROLE"
	forkChildMarker = "QUEUEWORKER_CHILD"
)

// TestWorkerForkFanOut re-executes the test binary to exercise the process
// fan-out for real. The test runs three times: as itself (spawning a
// supervisor), as the supervisor (Start with ForkCount=2, waiting for the
// children), and as each re-executed worker child (which must consume
// in-process instead of forking again).
func TestWorkerForkFanOut(t *testing.T) {
	switch {
	case os.Getenv(forkChildMarker) != "":
		forkFanOutChild(t)
	case os.Getenv(forkRoleEnv) == "supervisor":
		forkFanOutSupervisor(t)
	default:
		forkFanOutRoot(t)
	}
}

func forkFanOutRoot(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, exe, "-test.run=TestWorkerForkFanOut$", "-test.v")
	cmd.Env = append(os.Environ(), forkRoleEnv+"=supervisor")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "supervisor output:\n%s", out)

	assert.Equal(t, 2, strings.Count(string(out), "fork worker child ready"))
	assert.Contains(t, string(out), "fork supervisor done")
}

func forkFanOutSupervisor(t *testing.T) {
	w, err := queueworker.New(inmem.New(4),
		queueworker.WithForkCount(2),
		queueworker.WithThreadCount(1),
		queueworker.WithPollWait(20*time.Millisecond),
	)
	require.NoError(t, err)

	// Wait defaults to true: Start returns once both children have exited.
	require.NoError(t, w.Start(context.Background(), orderQueue(), nopHandler()))
	assert.False(t, w.Running())

	status := w.Status()
	require.Len(t, status.Processes, 2)
	assert.NotEqual(t, status.Processes[0].PID, status.Processes[1].PID)
	for _, p := range status.Processes {
		assert.NotZero(t, p.PID)
	}
	fmt.Println("fork supervisor done")
}

func forkFanOutChild(t *testing.T) {
	ad := inmem.New(4)
	var calls atomic.Int64
	// ForkCount is still set, but a child must run its consumers in-process.
	w, err := queueworker.New(ad,
		queueworker.WithForkCount(2),
		queueworker.WithThreadCount(1),
		queueworker.WithPollWait(20*time.Millisecond),
		queueworker.WithWait(false),
	)
	require.NoError(t, err)

	msg, err := queueworker.NewMessage("order.created", map[string]int{"order_id": 42})
	require.NoError(t, err)
	ad.Push(msg)

	require.NoError(t, w.Start(context.Background(), orderQueue(), queueworker.HandlerFunc(
		func(context.Context, []byte, *queueworker.Args) error {
			calls.Add(1)
			return nil
		})))
	defer w.Stop()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	status := w.Status()
	require.Len(t, status.Processes, 1)
	assert.Equal(t, os.Getpid(), status.Processes[0].PID)
	fmt.Println("fork worker child ready")
}
