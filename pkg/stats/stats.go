package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats holds the controller's Prometheus instruments.  New registers them
// with the default registerer, so construct it once per process.
type Stats struct {
	SamplesReceived   prometheus.Counter
	SamplesMalformed  prometheus.Counter
	JogCommands       prometheus.Counter
	ServoCommands     prometheus.Counter
	GripperActuations prometheus.Counter
	ArmRetries        prometheus.Counter
	DeadmanHeld       prometheus.Gauge
}

func New() *Stats {
	s := &Stats{
		SamplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teleop_samples_received_total",
			Help: "Joystick samples delivered to the active mode.",
		}),
		SamplesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teleop_samples_malformed_total",
			Help: "Joystick samples dropped because they were too short.",
		}),
		JogCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teleop_jog_commands_total",
			Help: "MoveJog commands sent to the arm.",
		}),
		ServoCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teleop_servo_commands_total",
			Help: "ServoP pose commands streamed to the arm.",
		}),
		GripperActuations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teleop_gripper_actuations_total",
			Help: "Gripper open/close actuations triggered.",
		}),
		ArmRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teleop_arm_write_retries_total",
			Help: "Dashboard writes that needed a reconnect and retry.",
		}),
		DeadmanHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teleop_deadman_held",
			Help: "1 while the L1 deadman button is held.",
		}),
	}

	prometheus.MustRegister(
		s.SamplesReceived,
		s.SamplesMalformed,
		s.JogCommands,
		s.ServoCommands,
		s.GripperActuations,
		s.ArmRetries,
		s.DeadmanHeld,
	)

	return s
}

// Serve exposes /metrics on addr; it blocks, so run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
