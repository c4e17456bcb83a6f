// Package metrics exposes Prometheus counters for the bot.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	once sync.Once

	// Registry holds every spindrift collector. It is separate from the
	// default registry so tests can build several bots in one process.
	Registry = prometheus.NewRegistry()

	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindrift_updates_total",
			Help: "Inbound Telegram updates by kind.",
		},
		[]string{"kind"}, // command, photo, callback, ignored
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindrift_commands_total",
			Help: "Executed commands by name and outcome.",
		},
		[]string{"command", "status"},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindrift_callbacks_total",
			Help: "Inline button presses by outcome.",
		},
		[]string{"status"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindrift_deliveries_total",
			Help: "Outbound deliveries by kind and outcome.",
		},
		[]string{"kind", "status"}, // kind: text, photo, prompt, edit
	)

	configWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindrift_config_writes_total",
			Help: "Per-user parameter upserts by outcome.",
		},
		[]string{"status"},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindrift_cache_requests_total",
			Help: "Settings cache lookups by result.",
		},
		[]string{"result"}, // hit, miss, error
	)
)

func init() {
	once.Do(func() {
		Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			updatesTotal,
			commandsTotal,
			callbacksTotal,
			deliveriesTotal,
			configWritesTotal,
			cacheRequestsTotal,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// IncUpdate counts one inbound update.
func IncUpdate(kind string) {
	updatesTotal.WithLabelValues(norm(kind)).Inc()
}

// IncCommand counts one command execution.
func IncCommand(command string, err error) {
	commandsTotal.WithLabelValues(norm(command), status(err)).Inc()
}

// IncCallback counts one button press.
func IncCallback(err error) {
	callbacksTotal.WithLabelValues(status(err)).Inc()
}

// IncDelivery counts one outbound API call.
func IncDelivery(kind string, err error) {
	deliveriesTotal.WithLabelValues(norm(kind), status(err)).Inc()
}

// IncConfigWrite counts one settings upsert.
func IncConfigWrite(err error) {
	configWritesTotal.WithLabelValues(status(err)).Inc()
}

// IncCacheRequest counts one settings cache lookup.
func IncCacheRequest(result string) {
	cacheRequestsTotal.WithLabelValues(norm(result)).Inc()
}
