// Package metrics exposes Prometheus metrics for command dispatch, module
// lifecycle and command registration. Label values are bounded: command keys
// and module names, never user or guild ids.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keshon/modkit/pkg/cmd"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/module"
	"github.com/keshon/modkit/pkg/registrar"
)

var (
	CommandExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modkit_command_executed_total",
		Help: "Commands that ran to completion, by command.",
	}, []string{"command"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modkit_command_duration_seconds",
		Help:    "Execution time of successful commands.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"command"})

	CommandHaltTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modkit_command_halt_total",
		Help: "Halted invocations, by command, reason and whether a handler claimed them.",
	}, []string{"command", "reason", "handled"})

	ModuleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modkit_module_transitions_total",
		Help: "Module lifecycle transitions, by stage and phase.",
	}, []string{"stage", "phase"})

	ModuleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "modkit_module_state",
		Help: "1 for the current state of each module.",
	}, []string{"module", "state"})

	CommandsRegistered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "modkit_application_commands",
		Help: "Application commands in the last sync, by scope kind.",
	}, []string{"scope"})

	SyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modkit_registrar_sync_total",
		Help: "Registrar syncs, by result (pushed or skipped).",
	}, []string{"result"})

	BusDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modkit_bus_drop_total",
		Help: "Events dropped because a subscriber was full, by topic.",
	}, []string{"topic"})
)

// IncBusDrop satisfies events.DropFunc.
func IncBusDrop(topic string, _ uint64) {
	BusDropsTotal.WithLabelValues(topic).Inc()
}

// Observe updates metrics for a single bus event.
func Observe(ev any) {
	switch e := ev.(type) {
	case cmd.Executed:
		k := e.Command.String()
		CommandExecutedTotal.WithLabelValues(k).Inc()
		CommandDuration.WithLabelValues(k).Observe(e.Duration.Seconds())
	case cmd.Halted:
		handled := "false"
		if e.Handled {
			handled = "true"
		}
		CommandHaltTotal.WithLabelValues(e.Command.String(), string(e.Reason), handled).Inc()
	case module.StateChange:
		ModuleTransitionsTotal.WithLabelValues(string(e.Stage), string(e.Phase)).Inc()
		if e.From != e.To {
			ModuleState.DeleteLabelValues(e.Name, e.From.String())
		}
		ModuleState.WithLabelValues(e.Name, e.To.String()).Set(1)
	case registrar.Registered:
		scope := "guild"
		if e.Scope.IsGlobal() {
			scope = "global"
		}
		CommandsRegistered.WithLabelValues(scope).Set(float64(len(e.Commands)))
		result := "pushed"
		if e.Skipped {
			result = "skipped"
		}
		SyncTotal.WithLabelValues(result).Inc()
	}
}

// Subscriber is the part of events.Bus Run needs.
type Subscriber interface {
	Subscribe(topic string) (<-chan any, func())
}

// Run feeds every framework topic into Observe until ctx is done.
func Run(ctx context.Context, bus Subscriber) error {
	topics := []string{
		events.TopicCommandExecute,
		events.TopicCommandHalt,
		events.TopicModuleStateChange,
		events.TopicCommandsRegistered,
	}
	merged := make(chan any)
	var unsubs []func()
	for _, topic := range topics {
		ch, unsub := bus.Subscribe(topic)
		unsubs = append(unsubs, unsub)
		go func() {
			for ev := range ch {
				select {
				case merged <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-merged:
			Observe(ev)
		}
	}
}
