// Package metrics exposes the bot's operational counters in Prometheus
// text exposition format. Updated from the engine and position manager,
// served at /metrics by the listener started in main.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Completed evaluation cycles",
		},
	)

	cycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_cycle_errors_total",
			Help: "Cycle-stage failures split by stage (universe|regime|supply|instrument|store)",
		},
		[]string{"stage"},
	)

	signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Trade signals split by side and reason",
		},
		[]string{"side", "reason"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Currently open positions",
		},
	)

	// One labeled series per regime, flipped between 0/1 so dashboards
	// stay simple.
	regime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_market_regime",
			Help: "Active market regime indicator",
		},
		[]string{"regime"},
	)

	killSwitchTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_kill_switch_trips_total",
			Help: "Times the daily loss limit forced liquidation",
		},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bot_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(cycles, cycleErrors, signals)
	prometheus.MustRegister(openPositions, regime, killSwitchTrips, cycleDuration)
}

var knownRegimes = []string{
	"STABLE_BULL", "VOLATILE_BULL", "NEUTRAL", "QUIET_BEAR", "PANIC_BEAR", "UNKNOWN",
}

func IncCycles()                    { cycles.Inc() }
func IncCycleError(stage string)    { cycleErrors.WithLabelValues(stage).Inc() }
func IncSignal(side, reason string) { signals.WithLabelValues(side, reason).Inc() }
func SetOpenPositions(n int)        { openPositions.Set(float64(n)) }
func IncKillSwitchTrips()           { killSwitchTrips.Inc() }
func ObserveCycle(d time.Duration)  { cycleDuration.Observe(d.Seconds()) }

func SetRegime(active string) {
	for _, r := range knownRegimes {
		v := 0.0
		if r == active {
			v = 1.0
		}
		regime.WithLabelValues(r).Set(v)
	}
}

// Serve starts the /metrics listener. The returned server is already
// listening; shut it down with Server.Shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
