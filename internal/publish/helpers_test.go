package publish

import (
	"context"
)

// contextFunc is a context plugin backed by a function.
type contextFunc struct {
	BasePlugin
	fn func(ctx context.Context, pctx *Context) error
}

func (p *contextFunc) ProcessContext(ctx context.Context, pctx *Context) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, pctx)
}

// instanceFunc is an instance plugin backed by a function.
type instanceFunc struct {
	BasePlugin
	fn func(ctx context.Context, inst *Instance) error
}

func (p *instanceFunc) ProcessInstance(ctx context.Context, inst *Instance) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, inst)
}

func ctxPlugin(name string, stage Stage, order float64, fn func(context.Context, *Context) error) *contextFunc {
	return &contextFunc{BasePlugin: BasePlugin{PluginName: name, PluginStage: stage, PluginOrder: order}, fn: fn}
}

func instPlugin(name string, stage Stage, order float64, fn func(context.Context, *Instance) error) *instanceFunc {
	return &instanceFunc{BasePlugin: BasePlugin{PluginName: name, PluginStage: stage, PluginOrder: order}, fn: fn}
}

func names(plugins []Plugin) []string {
	out := make([]string, len(plugins))
	for i, p := range plugins {
		out[i] = p.Name()
	}
	return out
}
