package launch

import (
	"context"
	"sync"

	"github.com/ynput/openpype/internal/config"
)

// recordHook appends its name to a shared log when executed.
type recordHook struct {
	BaseHook
	log     *[]string
	err     error
	panics  bool
	invalid bool
}

func newRecordHook(name string, order *int, log *[]string) *recordHook {
	return &recordHook{BaseHook: BaseHook{HookName: name, HookOrder: order}, log: log}
}

func (h *recordHook) Validate(*LaunchContext) bool { return !h.invalid }

func (h *recordHook) Execute(ctx context.Context, lc *LaunchContext) error {
	*h.log = append(*h.log, h.HookName)
	if h.panics {
		panic("hook exploded")
	}
	return h.err
}

// ctxHook fails when its context is already done.
type ctxHook struct {
	BaseHook
	ran bool
}

func (h *ctxHook) Execute(ctx context.Context, lc *LaunchContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.ran = true
	return nil
}

// fakeSpawner records spawn requests instead of starting processes.
type fakeSpawner struct {
	mu       sync.Mutex
	calls    [][]string
	envs     [][]string
	exitCode int
	waitErr  error
	err      error
}

func (s *fakeSpawner) Spawn(ctx context.Context, argv []string, env []string, opts SpawnOptions) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, argv)
	s.envs = append(s.envs, env)
	if s.err != nil {
		return nil, s.err
	}
	return &fakeProcess{pid: 4242, exitCode: s.exitCode, waitErr: s.waitErr}, nil
}

func (s *fakeSpawner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeProcess struct {
	pid      int
	exitCode int
	waitErr  error
}

func (p *fakeProcess) PID() int           { return p.pid }
func (p *fakeProcess) Wait() (int, error) { return p.exitCode, p.waitErr }
func (p *fakeProcess) Kill() error        { return nil }

func testApp() Application {
	return Application{Group: "maya", Variant: "2024", Host: "maya", Label: "Maya 2024"}
}

// discovered wraps hooks as if they came from one source.
func discovered(source string, hooks ...Hook) []Discovered {
	out := make([]Discovered, len(hooks))
	for i, h := range hooks {
		out[i] = Discovered{Source: source, Hook: h}
	}
	return out
}

func shellWrapConfig() *config.Config {
	cfg := config.Default()
	cfg.Launch.ShellWrap = true
	return cfg
}
