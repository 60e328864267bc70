package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/ynput/openpype/internal/errors"
)

// Node is a host scene node, e.g. an objectSet, a ROP or an IPR helper.
type Node struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// NodeGraph is the host scene graph creators operate on. Creators create
// auxiliary nodes in it and read the user's selection from it.
type NodeGraph interface {
	// CreateNode creates a node. The returned id is name, made unique by a
	// numeric suffix when the name is taken.
	CreateNode(ctx context.Context, name, nodeType string, attrs map[string]any) (string, error)
	// DeleteNode removes a node. Missing nodes return ErrNotFound.
	DeleteNode(ctx context.Context, id string) error
	// HasNode reports whether id exists.
	HasNode(ctx context.Context, id string) (bool, error)
	// Nodes lists every node sorted by id.
	Nodes(ctx context.Context) ([]Node, error)
	// Selection returns the currently selected node ids.
	Selection(ctx context.Context) ([]string, error)
}

// SceneGraph is an in-process NodeGraph, optionally persisted to a JSON file
// so separate CLI invocations see the same scene.
type SceneGraph struct {
	mu        sync.RWMutex
	nodes     map[string]Node
	selection []string
	path      string
}

type sceneFile struct {
	Nodes     []Node   `json:"nodes"`
	Selection []string `json:"selection"`
}

// NewSceneGraph returns an empty, unpersisted scene.
func NewSceneGraph() *SceneGraph {
	return &SceneGraph{nodes: make(map[string]Node)}
}

// OpenSceneGraph loads the scene stored at path, starting empty if the file
// does not exist. Every mutation is written back atomically.
func OpenSceneGraph(path string) (*SceneGraph, error) {
	g := NewSceneGraph()
	g.path = path

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, fmt.Errorf("failed to read scene: %w", err)
	}
	var f sceneFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scene %s: %w", path, err)
	}
	for _, n := range f.Nodes {
		g.nodes[n.ID] = n
	}
	g.selection = f.Selection
	return g, nil
}

// CreateNode adds a node named name (or name1, name2, ... when taken).
func (g *SceneGraph) CreateNode(ctx context.Context, name, nodeType string, attrs map[string]any) (string, error) {
	if err := ValidateID(name); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := name
	for i := 1; ; i++ {
		if _, taken := g.nodes[id]; !taken {
			break
		}
		id = name + strconv.Itoa(i)
	}
	g.nodes[id] = Node{ID: id, Type: nodeType, Attrs: attrs}
	if err := g.saveLocked(); err != nil {
		delete(g.nodes, id)
		return "", err
	}
	return id, nil
}

// DeleteNode removes a node and drops it from the selection.
func (g *SceneGraph) DeleteNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return errors.NewNotFoundError("node", id)
	}
	delete(g.nodes, id)
	prevSelection := g.selection
	g.selection = removeString(g.selection, id)
	if err := g.saveLocked(); err != nil {
		g.nodes[id] = node
		g.selection = prevSelection
		return err
	}
	return nil
}

// HasNode reports whether id exists.
func (g *SceneGraph) HasNode(ctx context.Context, id string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok, nil
}

// Nodes lists every node sorted by id.
func (g *SceneGraph) Nodes(ctx context.Context) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedLocked(), nil
}

// Selection returns a copy of the selection.
func (g *SceneGraph) Selection(ctx context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.selection...), nil
}

// Select replaces the selection. Unknown ids are rejected.
func (g *SceneGraph) Select(ids ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		if _, ok := g.nodes[id]; !ok {
			return errors.NewNotFoundError("node", id)
		}
	}
	g.selection = append([]string(nil), ids...)
	return g.saveLocked()
}

func (g *SceneGraph) sortedLocked() []Node {
	nodes := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

func (g *SceneGraph) saveLocked() error {
	if g.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(sceneFile{Nodes: g.sortedLocked(), Selection: g.selection}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scene: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}
	return atomicWriteFile(g.path, b, 0644)
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
