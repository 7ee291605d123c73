package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedLanguage is returned when no profile exists for a language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Profile describes how one language is run inside the sandbox.
type Profile struct {
	Image    string
	FileName string
	Command  []string
}

// DefaultProfiles returns the images used for arena languages.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"python": {
			Image:    "python:3.11-alpine",
			FileName: "main.py",
			Command:  []string{"python", "main.py"},
		},
		"javascript": {
			Image:    "node:20-alpine",
			FileName: "main.js",
			Command:  []string{"node", "main.js"},
		},
		"go": {
			Image:    "golang:1.22-alpine",
			FileName: "main.go",
			Command:  []string{"sh", "-c", "go run main.go"},
		},
		"java": {
			Image:    "eclipse-temurin:21-jdk-alpine",
			FileName: "Main.java",
			Command:  []string{"java", "Main.java"},
		},
		"cpp": {
			Image:    "gcc:13",
			FileName: "main.cpp",
			Command:  []string{"sh", "-c", "g++ -O2 -o main main.cpp && ./main"},
		},
	}
}

// SandboxConfig bounds every sandboxed run.
type SandboxConfig struct {
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkspaceRoot string
	Profiles      map[string]Profile
}

// Sandbox writes a source file into a throwaway workspace and runs it with the language profile.
type Sandbox struct {
	executor Executor
	cfg      SandboxConfig
}

// NewSandbox wraps executor.
func NewSandbox(executor Executor, cfg SandboxConfig) *Sandbox {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Profiles == nil {
		cfg.Profiles = DefaultProfiles()
	}
	return &Sandbox{executor: executor, cfg: cfg}
}

// RunSource executes source written in language.
func (s *Sandbox) RunSource(ctx context.Context, language, source string) (ExecutionResult, error) {
	profile, ok := s.cfg.Profiles[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return ExecutionResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	workspace, err := os.MkdirTemp(s.cfg.WorkspaceRoot, "arena-")
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, profile.FileName), []byte(source), 0o600); err != nil {
		return ExecutionResult{}, fmt.Errorf("write source: %w", err)
	}

	return s.executor.Run(ctx, ExecutionRequest{
		Image:           profile.Image,
		Cmd:             profile.Command,
		Timeout:         s.cfg.Timeout,
		Workspace:       workspace,
		WorkingDir:      "/workspace",
		MemoryLimitMB:   s.cfg.MemoryLimitMB,
		CPUShares:       s.cfg.CPUShares,
		NetworkDisabled: true,
	})
}

// Summary renders a run as the plain-text test report handed to graders.
func Summary(result ExecutionResult, err error) string {
	var b strings.Builder
	switch {
	case result.TimedOut:
		fmt.Fprintf(&b, "status: timeout after %s\n", result.Duration.Round(time.Millisecond))
	case err != nil:
		fmt.Fprintf(&b, "status: error (%v)\n", err)
	case result.ExitCode != 0:
		fmt.Fprintf(&b, "status: failed with exit code %d\n", result.ExitCode)
	default:
		fmt.Fprintf(&b, "status: ok in %s\n", result.Duration.Round(time.Millisecond))
	}
	if out := strings.TrimSpace(result.Stdout); out != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", truncate(out, 2000))
	}
	if errOut := strings.TrimSpace(result.Stderr); errOut != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", truncate(errOut, 2000))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
