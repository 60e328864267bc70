package publish

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/logging"
)

// Sort returns plugins in execution order. Stages run in sequence. Within a
// stage a plugin runs after every plugin named in its RunsAfter and after
// every plugin providing a key it requires. Among plugins whose
// dependencies are satisfied, the lowest Order runs first, then the lowest
// name.
//
// RunsAfter labels naming no plugin of the same stage are ignored with a
// warning. Plugin names must be unique. A dependency cycle returns an error
// matching errors.ErrDependencyCycle.
func Sort(plugins []Plugin, logger *logging.Logger) ([]Plugin, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	byStage := make(map[Stage][]Plugin, len(Stages))
	seen := make(map[string]Stage, len(plugins))
	for _, p := range plugins {
		if _, dup := seen[p.Name()]; dup {
			return nil, errors.NewAlreadyExistsError("plugin", p.Name())
		}
		seen[p.Name()] = p.Stage()
		byStage[p.Stage()] = append(byStage[p.Stage()], p)
	}

	sorted := make([]Plugin, 0, len(plugins))
	for _, stage := range Stages {
		ordered, err := sortStage(byStage[stage], seen, logger)
		if err != nil {
			return nil, err
		}
		sorted = append(sorted, ordered...)
	}
	return sorted, nil
}

// sortStage runs Kahn's algorithm over one stage, always picking the ready
// plugin with the lowest (order, name).
func sortStage(plugins []Plugin, stages map[string]Stage, logger *logging.Logger) ([]Plugin, error) {
	if len(plugins) == 0 {
		return nil, nil
	}

	byName := make(map[string]Plugin, len(plugins))
	providers := make(map[string][]string)
	inDegree := make(map[string]int, len(plugins))
	for _, p := range plugins {
		byName[p.Name()] = p
		inDegree[p.Name()] = 0
		for _, key := range p.Provides() {
			providers[key] = append(providers[key], p.Name())
		}
	}

	dependents := make(map[string][]string, len(plugins))
	addEdge := func(from, to string) {
		for _, d := range dependents[from] {
			if d == to {
				return
			}
		}
		dependents[from] = append(dependents[from], to)
		inDegree[to]++
	}

	for _, p := range plugins {
		name := p.Name()
		for _, label := range p.RunsAfter() {
			if _, ok := byName[label]; ok && label != name {
				addEdge(label, name)
				continue
			}
			if stage, ok := stages[label]; ok && stage < p.Stage() {
				continue
			}
			logger.Warn("runs_after label ignored",
				"plugin", name,
				"label", label,
				"stage", p.Stage().String(),
			)
		}
		for _, key := range p.Requires() {
			for _, provider := range providers[key] {
				if provider != name {
					addEdge(provider, name)
				}
			}
		}
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]Plugin, 0, len(plugins))
	for len(ready) > 0 {
		sortByOrder(ready, byName)
		next := ready[0]
		ready = ready[1:]
		order = append(order, byName[next])

		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) < len(plugins) {
		var stuck []string
		for name, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %s stage: %s", errors.ErrDependencyCycle,
			plugins[0].Stage(), strings.Join(stuck, ", "))
	}
	return order, nil
}

// sortByOrder sorts plugin names by order, then name, using insertion sort
// since the slices are typically small.
func sortByOrder(names []string, plugins map[string]Plugin) {
	less := func(a, b string) bool {
		oa, ob := roundOrder(plugins[a].Order()), roundOrder(plugins[b].Order())
		if oa != ob {
			return oa < ob
		}
		return a < b
	}
	for i := 1; i < len(names); i++ {
		key := names[i]
		j := i - 1
		for j >= 0 && less(key, names[j]) {
			names[j+1] = names[j]
			j--
		}
		names[j+1] = key
	}
}
