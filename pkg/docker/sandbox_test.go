package docker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureExecutor struct {
	req    ExecutionRequest
	source string
	result ExecutionResult
	err    error
}

func (c *captureExecutor) Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	c.req = req
	entries, err := os.ReadDir(req.Workspace)
	if err != nil {
		return ExecutionResult{}, err
	}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(req.Workspace, entry.Name()))
		if err != nil {
			return ExecutionResult{}, err
		}
		c.source = entry.Name() + ":" + string(data)
	}
	return c.result, c.err
}

func TestSandboxRunSourceUsesLanguageProfile(t *testing.T) {
	exec := &captureExecutor{result: ExecutionResult{Stdout: "olleh\n", Duration: 40 * time.Millisecond}}
	sandbox := NewSandbox(exec, SandboxConfig{WorkspaceRoot: t.TempDir(), MemoryLimitMB: 128})

	result, err := sandbox.RunSource(context.Background(), "Python", "print('hello'[::-1])")
	require.NoError(t, err)
	require.Equal(t, "olleh\n", result.Stdout)
	require.Equal(t, "python:3.11-alpine", exec.req.Image)
	require.Equal(t, []string{"python", "main.py"}, exec.req.Cmd)
	require.True(t, exec.req.NetworkDisabled)
	require.Equal(t, int64(128), exec.req.MemoryLimitMB)
	require.Equal(t, 3*time.Second, exec.req.Timeout)
	require.Equal(t, "main.py:print('hello'[::-1])", exec.source)

	_, statErr := os.Stat(exec.req.Workspace)
	require.True(t, os.IsNotExist(statErr), "workspace must be removed after the run")
}

func TestSandboxRejectsUnknownLanguage(t *testing.T) {
	sandbox := NewSandbox(&captureExecutor{}, SandboxConfig{WorkspaceRoot: t.TempDir()})
	_, err := sandbox.RunSource(context.Background(), "cobol", "DISPLAY 'HI'.")
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestSummaryDescribesOutcome(t *testing.T) {
	require.Equal(t, "status: ok in 40ms\nstdout:\nolleh", Summary(ExecutionResult{Stdout: "olleh\n", Duration: 40 * time.Millisecond}, nil))
	require.Contains(t, Summary(ExecutionResult{ExitCode: 1, Stderr: "Traceback"}, nil), "failed with exit code 1\nstderr:\nTraceback")
	require.Contains(t, Summary(ExecutionResult{TimedOut: true, Duration: 3 * time.Second}, errors.New("timed out")), "timeout after 3s")
	require.Contains(t, Summary(ExecutionResult{}, errors.New("container create: no such image")), "status: error (container create: no such image)")
}
