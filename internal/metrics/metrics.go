// Package metrics exposes prometheus collectors for launch hooks and publish
// plugins. A Recorder subscribes to the event bus, so the launch and publish
// packages never depend on prometheus directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ynput/openpype/internal/event"
)

const namespace = "openpype"

// Recorder owns a private registry with the pipeline collectors.
type Recorder struct {
	registry *prometheus.Registry

	hookDuration   *prometheus.HistogramVec
	hookFailures   *prometheus.CounterVec
	launches       *prometheus.CounterVec
	pluginDuration *prometheus.HistogramVec
	pluginFailures *prometheus.CounterVec
	publishes      *prometheus.CounterVec

	subscriptions []string
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		hookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "hook_duration_seconds",
			Help:      "Duration of launch hook executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "hook"}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "hook_failures_total",
			Help:      "Number of launch hooks that returned an error.",
		}, []string{"kind", "hook"}),
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "processes_started_total",
			Help:      "Number of application processes spawned.",
		}, []string{"app"}),
		pluginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "plugin_duration_seconds",
			Help:      "Duration of publish plugin calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "plugin"}),
		pluginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "plugin_failures_total",
			Help:      "Number of publish plugin calls that failed.",
		}, []string{"stage", "plugin"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "runs_total",
			Help:      "Number of publish runs by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		r.hookDuration,
		r.hookFailures,
		r.launches,
		r.pluginDuration,
		r.pluginFailures,
		r.publishes,
	)
	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attach subscribes the recorder to bus.
func (r *Recorder) Attach(bus *event.Bus) {
	if r == nil || bus == nil {
		return
	}
	r.subscriptions = append(r.subscriptions,
		bus.Subscribe(event.TypeHookExecuted, r.onHook),
		bus.Subscribe(event.TypeHookFailed, r.onHook),
		bus.Subscribe(event.TypeLaunchStarted, r.onLaunch),
		bus.Subscribe(event.TypePluginProcessed, r.onPlugin),
		bus.Subscribe(event.TypePublishFinished, r.onPublish),
	)
}

// Detach removes the recorder's subscriptions from bus.
func (r *Recorder) Detach(bus *event.Bus) {
	if r == nil || bus == nil {
		return
	}
	for _, id := range r.subscriptions {
		bus.Unsubscribe(id)
	}
	r.subscriptions = nil
}

func (r *Recorder) onHook(e event.Event) {
	he, ok := e.(event.HookExecutedEvent)
	if !ok {
		return
	}
	r.hookDuration.WithLabelValues(he.Kind, he.Hook).Observe(he.Duration.Seconds())
	if he.Err != nil {
		r.hookFailures.WithLabelValues(he.Kind, he.Hook).Inc()
	}
}

func (r *Recorder) onLaunch(e event.Event) {
	if le, ok := e.(event.LaunchStartedEvent); ok {
		r.launches.WithLabelValues(le.App).Inc()
	}
}

func (r *Recorder) onPlugin(e event.Event) {
	pe, ok := e.(event.PluginProcessedEvent)
	if !ok {
		return
	}
	r.pluginDuration.WithLabelValues(pe.Stage, pe.Plugin).Observe(pe.Duration.Seconds())
	if !pe.Success {
		r.pluginFailures.WithLabelValues(pe.Stage, pe.Plugin).Inc()
	}
}

func (r *Recorder) onPublish(e event.Event) {
	pe, ok := e.(event.PublishFinishedEvent)
	if !ok {
		return
	}
	result := "success"
	if !pe.Success {
		result = "failure"
	}
	r.publishes.WithLabelValues(result).Inc()
}

// WriteTextfile writes the current metrics in the node_exporter textfile
// format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
