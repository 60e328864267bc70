// Package publish runs publish plugins over the instances of a session.
//
// Plugins belong to one of four stages that always run in sequence:
// collect, validate, extract and integrate. Inside a stage, plugins declare
// the plugins they run after and the context or instance data keys they
// require and provide; [Sort] resolves these declarations topologically and
// uses the numeric order only to break ties.
//
// # Failure Policy
//
// A failing validator marks only the instance it processed as failed; that
// instance is skipped by every later plugin while the others continue. A
// failing collector, extractor or integrator stops the run. Plugins that
// perform irreversible work check [Context.Success] first.
package publish

import (
	"context"
	"math"
	"strings"

	"github.com/ynput/openpype/internal/errors"
)

// Stage is one of the four publish stages.
type Stage int

const (
	StageCollect Stage = iota
	StageValidate
	StageExtract
	StageIntegrate
)

// Base orders of the stages. Legacy plugins expressed their stage as an
// offset from these values, e.g. CollectorOrder + 0.49.
const (
	CollectorOrder  = 0.0
	ValidatorOrder  = 1.0
	ExtractorOrder  = 2.0
	IntegratorOrder = 3.0
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageCollect, StageValidate, StageExtract, StageIntegrate}

func (s Stage) String() string {
	switch s {
	case StageCollect:
		return "collect"
	case StageValidate:
		return "validate"
	case StageExtract:
		return "extract"
	case StageIntegrate:
		return "integrate"
	default:
		return "unknown"
	}
}

// BaseOrder returns the legacy numeric order of the stage.
func (s Stage) BaseOrder() float64 {
	return float64(s)
}

// StageForOrder maps a legacy numeric order to its stage. An order belongs
// to the stage whose base order is nearest, so CollectorOrder+0.49 is still
// a collector; anything from IntegratorOrder-0.5 upward integrates.
func StageForOrder(order float64) Stage {
	switch {
	case order < ValidatorOrder-0.5:
		return StageCollect
	case order < ExtractorOrder-0.5:
		return StageValidate
	case order < IntegratorOrder-0.5:
		return StageExtract
	default:
		return StageIntegrate
	}
}

// ParseStage converts a stage name to a Stage.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "collect", "collector":
		return StageCollect, nil
	case "validate", "validator":
		return StageValidate, nil
	case "extract", "extractor":
		return StageExtract, nil
	case "integrate", "integrator":
		return StageIntegrate, nil
	}
	return 0, errors.Wrapf(errors.ErrInvalidInput, "unknown publish stage %q", s)
}

// Plugin is the static description shared by context and instance plugins.
type Plugin interface {
	// Name is unique among the plugins of one run and is the label other
	// plugins refer to in RunsAfter.
	Name() string
	Stage() Stage
	// Order breaks ties between plugins the dependency graph leaves
	// unordered. It is relative to the stage's base order.
	Order() float64
	// RunsAfter names plugins of the same stage that must run first.
	RunsAfter() []string
	// Requires lists data keys that must be provided before the plugin runs.
	Requires() []string
	// Provides lists data keys the plugin sets.
	Provides() []string
	// Families limits instance plugins to matching instances. Entries may be
	// glob patterns; empty or "*" matches every family.
	Families() []string
	Hosts() []string
	Targets() []string
	Active() bool
}

// ContextPlugin runs once per publish.
type ContextPlugin interface {
	Plugin
	ProcessContext(ctx context.Context, pctx *Context) error
}

// InstancePlugin runs once per matching instance.
type InstancePlugin interface {
	Plugin
	ProcessInstance(ctx context.Context, inst *Instance) error
}

// BasePlugin provides the static parts of a Plugin. Embed it and implement
// ProcessContext or ProcessInstance.
type BasePlugin struct {
	PluginName   string
	PluginStage  Stage
	PluginOrder  float64
	After        []string
	RequiresKeys []string
	ProvidesKeys []string
	FamilyFilter []string
	HostFilter   []string
	TargetFilter []string
	Disabled     bool
}

func (b *BasePlugin) Name() string        { return b.PluginName }
func (b *BasePlugin) Stage() Stage        { return b.PluginStage }
func (b *BasePlugin) Order() float64      { return b.PluginOrder }
func (b *BasePlugin) RunsAfter() []string { return b.After }
func (b *BasePlugin) Requires() []string  { return b.RequiresKeys }
func (b *BasePlugin) Provides() []string  { return b.ProvidesKeys }
func (b *BasePlugin) Families() []string  { return b.FamilyFilter }
func (b *BasePlugin) Hosts() []string     { return b.HostFilter }
func (b *BasePlugin) Targets() []string   { return b.TargetFilter }
func (b *BasePlugin) Active() bool        { return !b.Disabled }

// LegacyBase builds a BasePlugin from a legacy numeric order such as
// ValidatorOrder + 0.1. The stage is derived from the order and the offset
// from the stage's base order becomes the tie-breaker.
func LegacyBase(name string, order float64) BasePlugin {
	stage := StageForOrder(order)
	return BasePlugin{
		PluginName:  name,
		PluginStage: stage,
		PluginOrder: order - stage.BaseOrder(),
	}
}

// matchesFamilies reports whether any of families matches a plugin filter.
func matchesFamilies(filter, families []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, pattern := range filter {
		if pattern == "*" {
			return true
		}
		g := compilePattern(pattern)
		for _, f := range families {
			if g.Match(f) {
				return true
			}
		}
	}
	return false
}

// matchesAny reports whether value is accepted by an allow-list; an empty
// list or "*" accepts everything.
func matchesAny(filter []string, values ...string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == "*" {
			return true
		}
		for _, v := range values {
			if strings.EqualFold(f, v) {
				return true
			}
		}
	}
	return false
}

// roundOrder keeps float noise like 0.1+0.2 out of sort decisions.
func roundOrder(o float64) float64 {
	return math.Round(o*1e6) / 1e6
}
