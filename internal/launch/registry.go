package launch

import (
	"sort"
	"sync"

	"github.com/ynput/openpype/internal/errors"
)

// SourceBuiltin is the source name of the hooks shipped with OpenPype.
const SourceBuiltin = "builtin"

// Factory constructs a fresh hook for one launch.
type Factory func() Hook

type registration struct {
	source  string
	name    string
	factory Factory
}

// Registry holds compiled-in hook factories keyed by "<source>/<name>".
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewDefaultRegistry creates a registry holding the built-in hooks.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// Register adds a factory. The factory is called once to learn the hook name;
// registering the same qualified name twice fails.
func (r *Registry) Register(source string, factory Factory) error {
	if factory == nil {
		return errors.Wrap(errors.ErrInvalidInput, "hook factory is nil")
	}
	hook := factory()
	if hook == nil || hook.Name() == "" {
		return errors.Wrapf(errors.ErrInvalidInput, "hook factory in %q returned an unnamed hook", source)
	}

	qualified := source + "/" + hook.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[qualified]; exists {
		return errors.NewAlreadyExistsError("hook", qualified)
	}
	r.names[qualified] = struct{}{}
	r.entries = append(r.entries, registration{source: source, name: hook.Name(), factory: factory})
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(source string, factory Factory) {
	if err := r.Register(source, factory); err != nil {
		panic(err)
	}
}

// Names returns the sorted qualified names of all registered hooks.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.names))
	for n := range r.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instantiate constructs every registered hook, split by kind.
func (r *Registry) Instantiate() (pre, post []Discovered) {
	if r == nil {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		d := Discovered{Source: e.source, Hook: e.factory()}
		if d.Hook.Kind() == KindPost {
			post = append(post, d)
		} else {
			pre = append(pre, d)
		}
	}
	return pre, post
}
