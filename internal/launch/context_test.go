package launch

import (
	"context"
	"strings"
	"testing"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/event"
)

func TestLaunch_RunsHooksInOrderThenSpawns(t *testing.T) {
	var log []string
	spawner := &fakeSpawner{}
	lc := NewLaunchContext(testApp(), ContextOptions{
		Platform: "linux",
		Args:     []any{"/usr/autodesk/maya2024/bin/maya", []string{"-proj", "/work"}},
		Env:      map[string]string{"PATH": "/usr/bin"},
		Discovery: &DiscoveryResult{Pre: discovered("studio",
			newRecordHook("A", Order(10), &log),
			newRecordHook("B", Order(1000), &log),
			newRecordHook("C", nil, &log),
			newRecordHook("D", Order(5), &log),
		)},
		Spawner: spawner,
	})

	proc, err := lc.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if proc.PID() != 4242 || lc.Process == nil {
		t.Errorf("Launch() process = %v", proc)
	}
	if got := strings.Join(log, ","); got != "D,A,B,C" {
		t.Errorf("execution order = %s, want D,A,B,C", got)
	}
	if spawner.callCount() != 1 {
		t.Fatalf("spawn calls = %d, want 1", spawner.callCount())
	}
	if got := strings.Join(spawner.calls[0], " "); got != "/usr/autodesk/maya2024/bin/maya -proj /work" {
		t.Errorf("argv = %q", got)
	}
	if got := spawner.envs[0]; len(got) != 1 || got[0] != "PATH=/usr/bin" {
		t.Errorf("env = %v", got)
	}
}

// When a pre-launch hook fails the process must never be spawned.
func TestLaunch_PrelaunchFailureAborts(t *testing.T) {
	var log []string
	failing := newRecordHook("Broken", Order(5), &log)
	failing.err = errors.New("registry key missing")

	spawner := &fakeSpawner{}
	lc := NewLaunchContext(testApp(), ContextOptions{
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Pre: discovered("studio", newRecordHook("First", Order(1), &log), failing, newRecordHook("Later", Order(9), &log))},
		Spawner:   spawner,
	})

	_, err := lc.Launch(context.Background())
	if err == nil {
		t.Fatal("Launch() should fail")
	}
	if !errors.Is(err, errors.ErrLaunchAborted) || !errors.Is(err, errors.ErrHookFailed) {
		t.Errorf("error = %v, want ErrLaunchAborted and ErrHookFailed", err)
	}
	var launchErr *errors.LaunchError
	if !errors.As(err, &launchErr) || launchErr.Hook != "studio/Broken" || launchErr.App != "maya/2024" {
		t.Errorf("error = %#v, want LaunchError naming studio/Broken", err)
	}
	if !strings.Contains(err.Error(), "registry key missing") {
		t.Errorf("error %q should carry the hook failure", err)
	}
	if got := strings.Join(log, ","); got != "First,Broken" {
		t.Errorf("executed = %s, want First,Broken", got)
	}
	if spawner.callCount() != 0 {
		t.Fatal("process spawned after pre-launch failure")
	}

	// A second attempt must not spawn either
	if _, err := lc.Launch(context.Background()); err == nil || spawner.callCount() != 0 {
		t.Errorf("second Launch() = %v, spawn calls %d", err, spawner.callCount())
	}
}

func TestLaunch_PanickingHookAborts(t *testing.T) {
	var log []string
	bad := newRecordHook("Panics", Order(1), &log)
	bad.panics = true

	spawner := &fakeSpawner{}
	lc := NewLaunchContext(testApp(), ContextOptions{
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Pre: discovered("studio", bad)},
		Spawner:   spawner,
	})

	if _, err := lc.Launch(context.Background()); !errors.Is(err, errors.ErrLaunchAborted) {
		t.Errorf("Launch() error = %v, want ErrLaunchAborted", err)
	}
	if spawner.callCount() != 0 {
		t.Error("process spawned after panicking hook")
	}
}

func TestLaunch_CancelledContext(t *testing.T) {
	var log []string
	spawner := &fakeSpawner{}
	lc := NewLaunchContext(testApp(), ContextOptions{
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Pre: discovered("studio", newRecordHook("A", Order(1), &log))},
		Spawner:   spawner,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lc.Launch(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Launch() error = %v, want context.Canceled", err)
	}
	if len(log) != 0 || spawner.callCount() != 0 {
		t.Errorf("cancelled launch executed %v, spawned %d", log, spawner.callCount())
	}
}

// A failing post-launch hook must not stop the ones after it.
func TestRunPostlaunchHooks_Isolation(t *testing.T) {
	var log []string
	post := func(name string, order int) *recordHook {
		h := newRecordHook(name, Order(order), &log)
		h.HookKind = KindPost
		return h
	}
	second := post("Second", 2)
	second.err = errors.New("ftrack unreachable")
	third := post("Third", 3)
	third.panics = true

	lc := NewLaunchContext(testApp(), ContextOptions{
		Args: []any{"maya"},
		Discovery: &DiscoveryResult{Post: discovered("studio",
			post("First", 1), second, third, post("Fourth", 4),
		)},
		Spawner: &fakeSpawner{},
	})

	err := lc.RunPostlaunchHooks(context.Background())
	if got := strings.Join(log, ","); got != "First,Second,Third,Fourth" {
		t.Errorf("executed = %s, want all four", got)
	}
	if err == nil || !strings.Contains(err.Error(), "ftrack unreachable") || !strings.Contains(err.Error(), "studio/Third") {
		t.Errorf("RunPostlaunchHooks() error = %v, want both failures reported", err)
	}
}

func TestWait_RunsPostHooksAfterExit(t *testing.T) {
	var log []string
	post := newRecordHook("AfterExit", nil, &log)
	post.HookKind = KindPost

	bus := event.NewBus(nil)
	var exited []event.LaunchExitedEvent
	bus.Subscribe(event.TypeLaunchExited, func(e event.Event) {
		exited = append(exited, e.(event.LaunchExitedEvent))
	})

	lc := NewLaunchContext(testApp(), ContextOptions{
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Post: discovered("studio", post)},
		Spawner:   &fakeSpawner{exitCode: 3},
		Bus:       bus,
	})

	if _, err := lc.Wait(context.Background()); err == nil {
		t.Error("Wait() before Launch should fail")
	}
	if _, err := lc.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if len(log) != 0 {
		t.Fatal("post hooks must not run before exit")
	}

	code, err := lc.Wait(context.Background())
	if err != nil || code != 3 {
		t.Fatalf("Wait() = (%d, %v), want (3, nil)", code, err)
	}
	if lc.ExitCode == nil || *lc.ExitCode != 3 {
		t.Errorf("ExitCode = %v", lc.ExitCode)
	}
	if len(log) != 1 {
		t.Errorf("post hooks executed = %v", log)
	}
	if len(exited) != 1 || exited[0].ExitCode != 3 {
		t.Errorf("exit events = %+v", exited)
	}
}

// Post-launch hooks still run after the caller's context was cancelled,
// for example by Ctrl-C while waiting.
func TestWait_PostHooksSurviveCancellation(t *testing.T) {
	post := &ctxHook{BaseHook: BaseHook{HookName: "Cleanup", HookKind: KindPost}}
	failing := newRecordHook("Report", Order(1), new([]string))
	failing.HookKind = KindPost
	failing.err = errors.New("tracker offline")

	lc := NewLaunchContext(testApp(), ContextOptions{
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Post: discovered("studio", post, failing)},
		Spawner:   &fakeSpawner{},
	})
	if _, err := lc.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, err := lc.Wait(ctx)
	if err != nil || code != 0 {
		t.Fatalf("Wait() = (%d, %v), want (0, nil)", code, err)
	}
	if !post.ran {
		t.Error("post-launch hook skipped after cancellation")
	}
	if lc.PostlaunchErr == nil || !strings.Contains(lc.PostlaunchErr.Error(), "studio/Report: tracker offline") {
		t.Errorf("PostlaunchErr = %v, want the failing hook reported", lc.PostlaunchErr)
	}
	if err := lc.RunPostlaunchHooks(context.Background()); err != lc.PostlaunchErr {
		t.Errorf("second RunPostlaunchHooks() = %v, want the recorded failures", err)
	}
}

func TestWait_PostHooksRunWhenWaitFails(t *testing.T) {
	var log []string
	post := newRecordHook("AfterCrash", nil, &log)
	post.HookKind = KindPost

	lc := NewLaunchContext(testApp(), ContextOptions{
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Post: discovered("studio", post)},
		Spawner:   &fakeSpawner{exitCode: -1, waitErr: errors.New("no child processes")},
	})
	if _, err := lc.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	if _, err := lc.Wait(context.Background()); err == nil || !strings.Contains(err.Error(), "no child processes") {
		t.Errorf("Wait() error = %v, want the wait failure", err)
	}
	if len(log) != 1 {
		t.Errorf("post hooks executed = %v, want AfterCrash", log)
	}
	if lc.ExitCode != nil {
		t.Errorf("ExitCode = %d, want unset", *lc.ExitCode)
	}
}

func TestLaunch_PublishesHookEvents(t *testing.T) {
	var log []string
	bus := event.NewBus(nil)
	var hookEvents []event.HookExecutedEvent
	var started int
	bus.SubscribeAll(func(e event.Event) {
		switch ev := e.(type) {
		case event.HookExecutedEvent:
			hookEvents = append(hookEvents, ev)
		case event.LaunchStartedEvent:
			started++
		}
	})

	lc := NewLaunchContext(testApp(), ContextOptions{
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Pre: discovered("studio", newRecordHook("A", Order(1), &log))},
		Spawner:   &fakeSpawner{},
		Bus:       bus,
	})
	if _, err := lc.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	if len(hookEvents) != 1 || hookEvents[0].Hook != "studio/A" || hookEvents[0].Kind != "pre" {
		t.Errorf("hook events = %+v", hookEvents)
	}
	if started != 1 {
		t.Errorf("launch started events = %d, want 1", started)
	}
}

// A hook ordered after a shell wrap sees joined arguments and must fail
// cleanly instead of corrupting the command.
func TestLaunch_JoinedArgsHazard(t *testing.T) {
	late := &argsHook{BaseHook: BaseHook{HookName: "LateArgs", HookOrder: Order(2000)}}
	spawner := &fakeSpawner{}
	lc := NewLaunchContext(testApp(), ContextOptions{
		Platform:  "linux",
		Args:      []any{"maya"},
		Discovery: &DiscoveryResult{Pre: discovered(SourceBuiltin, NewShellWrap(), late)},
		Spawner:   spawner,
		Config:    shellWrapConfig(),
	})

	_, err := lc.Launch(context.Background())
	if !errors.Is(err, errors.ErrArgsJoined) {
		t.Errorf("Launch() error = %v, want ErrArgsJoined", err)
	}
	if spawner.callCount() != 0 {
		t.Error("process spawned with a failed hook")
	}
}

type argsHook struct{ BaseHook }

func (h *argsHook) Execute(ctx context.Context, lc *LaunchContext) error {
	return lc.Args.Append("-batch")
}
