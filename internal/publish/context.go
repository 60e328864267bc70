package publish

import (
	"time"

	"github.com/spf13/cast"

	"github.com/ynput/openpype/internal/creator"
	"github.com/ynput/openpype/internal/logging"
	"github.com/ynput/openpype/internal/session"
)

// Context data keys set by the built-in collectors.
const (
	KeyCurrentFile = "currentFile"
	KeyProject     = "project"
	KeyAsset       = "asset"
	KeyTask        = "task"
	KeyHost        = "host"
	KeyUser        = "user"
	KeyAnatomyData = "anatomyData"
	KeyPublishRoot = "publishRoot"
	KeyStagingDir  = "stagingDir"
	KeyPublishDir  = "publishDir"
	KeyVersion     = "version"
)

// Representation is one set of files an instance publishes.
type Representation struct {
	Name       string
	Ext        string
	StagingDir string
	Files      []string
	// Published holds the destination paths after integration
	Published []string
}

// Instance is the per-run record of one publishable deliverable, usually
// built from a CreatedInstance.
type Instance struct {
	Name     string
	Family   string
	Families []string
	Active   bool
	Data     map[string]any

	Representations []*Representation

	// Created is the instance this record was collected from, if any
	Created *creator.CreatedInstance

	context *Context
	failure error
}

// NewInstance creates an active instance with empty data.
func NewInstance(name, family string) *Instance {
	return &Instance{
		Name:   name,
		Family: family,
		Active: true,
		Data:   make(map[string]any),
	}
}

// ID returns the CreatedInstance id, or the name for instances added by
// collectors directly.
func (i *Instance) ID() string {
	if i.Created != nil {
		return i.Created.ID()
	}
	return i.Name
}

// Context returns the context the instance belongs to.
func (i *Instance) Context() *Context { return i.context }

// AllFamilies returns Family followed by the additional families.
func (i *Instance) AllFamilies() []string {
	return append([]string{i.Family}, i.Families...)
}

// Failed reports whether a validator rejected the instance.
func (i *Instance) Failed() bool { return i.failure != nil }

// Failure returns the validation error that failed the instance.
func (i *Instance) Failure() error { return i.failure }

func (i *Instance) fail(err error) {
	if i.failure == nil {
		i.failure = err
	}
}

// PluginEnabled reports whether the user left plugin enabled for this
// instance. Optional plugins are toggled through
// publish_attributes[<plugin>]["active"].
func (i *Instance) PluginEnabled(plugin string) bool {
	if i.Created == nil {
		return true
	}
	attrs, ok := i.Created.PublishAttributes[plugin]
	if !ok {
		return true
	}
	v, ok := cast.ToStringMap(attrs)["active"]
	return !ok || cast.ToBool(v)
}

// AddRepresentation appends a representation.
func (i *Instance) AddRepresentation(r *Representation) {
	i.Representations = append(i.Representations, r)
}

// Result records one plugin call.
type Result struct {
	Plugin   string
	Stage    Stage
	Instance string // empty for context plugins
	Success  bool
	Error    error
	Duration time.Duration
}

// Context is the shared state of one publish run.
type Context struct {
	// Data is shared by every plugin of the run
	Data map[string]any
	// RunID identifies the run; set by the Runner
	RunID string

	Session *session.ProcessContext
	Create  *creator.CreateContext

	instances []*Instance
	results   []Result
}

// NewContext creates an empty publish context for a session. cc may be nil
// when instances are added by other collectors.
func NewContext(pc *session.ProcessContext, cc *creator.CreateContext) *Context {
	return &Context{
		Data:    make(map[string]any),
		Session: pc,
		Create:  cc,
	}
}

// AddInstance adds inst to the context.
func (c *Context) AddInstance(inst *Instance) {
	inst.context = c
	c.instances = append(c.instances, inst)
}

// RemoveInstance removes the instance named name and reports whether it
// existed.
func (c *Context) RemoveInstance(name string) bool {
	for i, inst := range c.instances {
		if inst.Name == name {
			c.instances = append(c.instances[:i], c.instances[i+1:]...)
			inst.context = nil
			return true
		}
	}
	return false
}

// Instances returns the instances in insertion order.
func (c *Context) Instances() []*Instance {
	return append([]*Instance(nil), c.instances...)
}

// Instance returns the instance named name.
func (c *Context) Instance(name string) (*Instance, bool) {
	for _, inst := range c.instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return nil, false
}

// Results returns the recorded plugin calls in execution order.
func (c *Context) Results() []Result {
	return append([]Result(nil), c.results...)
}

// Success reports whether every plugin call so far succeeded.
func (c *Context) Success() bool {
	for _, r := range c.results {
		if !r.Success {
			return false
		}
	}
	return true
}

// Logger returns the session logger.
func (c *Context) Logger() *logging.Logger {
	if c.Session == nil {
		return logging.NopLogger()
	}
	return c.Session.Logger
}

// String returns a context data value as a string.
func (c *Context) String(key string) string {
	return cast.ToString(c.Data[key])
}

func (c *Context) record(r Result) {
	c.results = append(c.results, r)
}
