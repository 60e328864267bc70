package launch

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/ynput/openpype/internal/errors"
)

// SpawnOptions are the process creation options hooks may adjust.
type SpawnOptions struct {
	// Dir is the working directory; empty uses the current one
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a spawned application.
type Process interface {
	// PID returns the operating system process id.
	PID() int
	// Wait blocks until the process exits and returns its exit code. A
	// non-zero exit code is not an error.
	Wait() (int, error)
	// Kill terminates the process.
	Kill() error
}

// Spawner starts processes. Tests replace it with a recording fake.
type Spawner interface {
	Spawn(ctx context.Context, argv []string, env []string, opts SpawnOptions) (Process, error)
}

// ExecSpawner spawns real processes with os/exec. The process is not bound to
// ctx; it keeps running after the launching command returns.
type ExecSpawner struct{}

// Spawn starts argv with env.
func (ExecSpawner) Spawn(ctx context.Context, argv []string, env []string, opts SpawnOptions) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	once     sync.Once
	exitCode int
	err      error
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() (int, error) {
	p.once.Do(func() {
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			p.exitCode = 0
		case errors.As(err, &exitErr):
			p.exitCode = exitErr.ExitCode()
		default:
			p.exitCode = -1
			p.err = err
		}
	})
	return p.exitCode, p.err
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// EnvList converts an environment map to sorted KEY=value entries.
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// EnvMap parses KEY=value entries; later entries win.
func EnvMap(list []string) map[string]string {
	env := make(map[string]string, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}
