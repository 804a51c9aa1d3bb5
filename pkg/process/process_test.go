package process

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
}

func startSleeper(t *testing.T, script string) (*exec.Cmd, chan struct{}) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	cmd := exec.Command("sh", "-c", script)
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return cmd, exited
}

func TestTerminateGraceful(t *testing.T) {
	cmd, exited := startSleeper(t, "sleep 30")

	start := time.Now()
	require.NoError(t, Terminate(cmd.Process, 5*time.Second, exited))
	<-exited
	assert.Less(t, time.Since(start), 3*time.Second, "SIGTERM should end sleep promptly")
}

func TestTerminateKillsAfterGrace(t *testing.T) {
	// The shell ignores SIGTERM, so only the kill ends it.
	cmd, exited := startSleeper(t, "trap '' TERM; sleep 30")
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, Terminate(cmd.Process, 200*time.Millisecond, exited))

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process survived the kill")
	}
}

func TestInterruptFinishedProcess(t *testing.T) {
	cmd, exited := startSleeper(t, "exit 0")
	<-exited
	assert.NoError(t, Interrupt(cmd.Process))
	assert.NoError(t, Interrupt(nil))
}
