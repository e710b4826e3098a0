package teleopmode

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/armlab/cr5-teleop/pkg/arm"
	"github.com/armlab/cr5-teleop/pkg/config"
	"github.com/armlab/cr5-teleop/pkg/gripper"
	"github.com/armlab/cr5-teleop/pkg/joystick"
	"github.com/armlab/cr5-teleop/pkg/stats"
)

type fakeArm struct {
	moves     [][]int
	stops     int
	servos    []arm.Pose
	poseReads int
	pose      arm.Pose
}

func (f *fakeArm) Enable() error     { return nil }
func (f *fakeArm) Disable() error    { return nil }
func (f *fakeArm) ClearError() error { return nil }
func (f *fakeArm) Close() error      { return nil }

func (f *fakeArm) Move(values []int) error {
	vals := make([]int, len(values))
	copy(vals, values)
	f.moves = append(f.moves, vals)
	return nil
}

func (f *fakeArm) StopJog() error {
	f.stops++
	return nil
}

func (f *fakeArm) ServoP(p arm.Pose) error {
	f.servos = append(f.servos, p)
	return nil
}

func (f *fakeArm) GetPose() (arm.Pose, error) {
	f.poseReads++
	return f.pose, nil
}

func testConfig() config.TeleopConfig {
	return config.TeleopConfig{
		LimitX:          config.Range{Min: -800, Max: 0},
		LimitY:          config.Range{Min: -500, Max: 500},
		LimitZ:          config.Range{Min: 155, Max: 750},
		MaxJumpMM:       40,
		MinMoveMM:       2,
		CommandInterval: 33 * time.Millisecond,
		StickSpeedMM:    120,
		StickSpeedDeg:   30,
	}
}

func newTestMode(t *testing.T) (*TeleopMode, *fakeArm) {
	t.Helper()

	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	fa := &fakeArm{pose: arm.Pose{X: -400, Y: 0, Z: 400, Rx: 180}}
	grip := gripper.New("127.0.0.1", 1, 50*time.Millisecond, time.Millisecond)
	grip.PreDelay = 0
	m := New(fa, grip, stats.New(), nil, testConfig())
	return m, fa
}

// sample builds a full-length pad snapshot with the given overrides.
func sample(buttons map[int]int32, axes map[int]float64) joystick.Sample {
	s := joystick.Sample{
		Buttons: make([]int32, 13),
		Axes:    make([]float64, 8),
	}
	for n, v := range buttons {
		s.Buttons[n] = v
	}
	for n, v := range axes {
		s.Axes[n] = v
	}
	return s
}

func TestDeadmanEdgeDetection(t *testing.T) {
	m, fa := newTestMode(t)

	m.handleSample(sample(nil, nil))
	if m.l1Held {
		t.Fatal("deadman should start released")
	}

	m.handleSample(sample(map[int]int32{joystick.ButtonL1: 1}, nil))
	if !m.l1Held {
		t.Fatal("deadman should be held after press sample")
	}
	if fa.poseReads != 1 {
		t.Errorf("press edge should re-baseline once, got %d pose reads", fa.poseReads)
	}

	// Holding across further samples is not a new press.
	m.handleSample(sample(map[int]int32{joystick.ButtonL1: 1}, nil))
	m.handleSample(sample(map[int]int32{joystick.ButtonL1: 1}, nil))
	if !m.l1Held {
		t.Fatal("deadman should stay held")
	}
	if fa.poseReads != 1 {
		t.Errorf("held samples must not repeat the press side effect, got %d pose reads", fa.poseReads)
	}

	m.handleSample(sample(nil, nil))
	if m.l1Held {
		t.Fatal("deadman should be released")
	}
	if fa.stops == 0 {
		t.Error("release edge should stop jogging")
	}
}

func TestShortSamplesAreDroppedNotFatal(t *testing.T) {
	m, fa := newTestMode(t)

	m.handleSample(joystick.Sample{})
	m.handleSample(joystick.Sample{Buttons: []int32{1}})
	m.handleSample(joystick.Sample{Buttons: make([]int32, 13), Axes: []float64{0, 0}})

	if got := testutil.ToFloat64(m.stats.SamplesMalformed); got != 3 {
		t.Errorf("expected 3 malformed samples, got %f", got)
	}
	if len(fa.moves) != 0 || len(fa.servos) != 0 {
		t.Error("short samples must not produce motion")
	}
	if m.l1Held {
		t.Error("short samples must not change the held flag")
	}
}

func TestDeriveJog(t *testing.T) {
	for _, tc := range []struct {
		name    string
		buttons map[int]int32
		axes    map[int]float64
		want    [6]int
	}{
		{"idle", nil, nil, [6]int{}},
		{"dpad up", nil, map[int]float64{joystick.AxisDPadY: -1}, [6]int{1, 0, 0, 0, 0, 0}},
		{"dpad down", nil, map[int]float64{joystick.AxisDPadY: 1}, [6]int{-1, 0, 0, 0, 0, 0}},
		{"dpad right", nil, map[int]float64{joystick.AxisDPadX: 1}, [6]int{0, 1, 0, 0, 0, 0}},
		{"dpad left", nil, map[int]float64{joystick.AxisDPadX: -1}, [6]int{0, -1, 0, 0, 0, 0}},
		{"triangle up", map[int]int32{joystick.ButtonTriangle: 1}, nil, [6]int{0, 0, 1, 0, 0, 0}},
		{"square down", map[int]int32{joystick.ButtonSquare: 1}, nil, [6]int{0, 0, -1, 0, 0, 0}},
		{"r1 shifts to rotation", map[int]int32{joystick.ButtonR1: 1},
			map[int]float64{joystick.AxisDPadY: -1}, [6]int{0, 0, 0, 1, 0, 0}},
		{"r1 plus triangle", map[int]int32{joystick.ButtonR1: 1, joystick.ButtonTriangle: 1},
			nil, [6]int{0, 0, 0, 0, 0, 1}},
	} {
		got := deriveJog(sample(tc.buttons, tc.axes))
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestJogCommandsAreEdgeTriggered(t *testing.T) {
	m, fa := newTestMode(t)

	held := map[int]int32{joystick.ButtonL1: 1}
	up := map[int]float64{joystick.AxisDPadY: -1}

	m.handleSample(sample(held, up))
	if len(fa.moves) != 1 {
		t.Fatalf("expected 1 move, got %d", len(fa.moves))
	}
	if got, want := fa.moves[0], []int{1, 0, 0, 0, 0, 0}; !equalInts(got, want) {
		t.Errorf("got move %v, want %v", got, want)
	}
	if len(fa.moves[0]) != 6 {
		t.Errorf("move vector must have 6 entries")
	}

	// Same vector again: no duplicate command.
	m.handleSample(sample(held, up))
	if len(fa.moves) != 1 {
		t.Errorf("unchanged jog vector must not repeat the command, got %d moves", len(fa.moves))
	}

	// D-pad released while deadman still held: jogging stops.
	stopsBefore := fa.stops
	m.handleSample(sample(held, nil))
	if fa.stops != stopsBefore+1 {
		t.Errorf("expected a stop when the jog vector cleared")
	}

	// Without the deadman the same D-pad input produces nothing.
	m.handleSample(sample(nil, up))
	if len(fa.moves) != 1 {
		t.Errorf("jog without the deadman must not move, got %d moves", len(fa.moves))
	}
}

func TestPoseStreamingClampsAndThresholds(t *testing.T) {
	m, fa := newTestMode(t)

	// Deadman pressed, left stick fully forward.
	m.handleSample(sample(map[int]int32{joystick.ButtonL1: 1},
		map[int]float64{joystick.AxisLStickY: -1}))

	m.tick()
	if len(fa.servos) != 1 {
		t.Fatalf("expected a streamed pose, got %d", len(fa.servos))
	}
	step := m.cfg.StickSpeedMM * m.cfg.CommandInterval.Seconds()
	want := fa.pose.X + step
	if got := fa.servos[0].X; got != want {
		t.Errorf("got X %f, want %f", got, want)
	}

	// Keep ticking: X must never pass the workspace limit.
	for i := 0; i < 2000; i++ {
		m.tick()
	}
	for _, p := range fa.servos {
		if p.X > m.cfg.LimitX.Max {
			t.Fatalf("streamed pose %f beyond limit %f", p.X, m.cfg.LimitX.Max)
		}
	}
	last := fa.servos[len(fa.servos)-1]
	if last.X < m.cfg.LimitX.Max-step {
		t.Errorf("expected to saturate near the limit, got %f", last.X)
	}

	// Centred sticks: below the min-move threshold, nothing streams.
	m.handleSample(sample(map[int]int32{joystick.ButtonL1: 1}, nil))
	sent := len(fa.servos)
	m.tick()
	m.tick()
	if len(fa.servos) != sent {
		t.Errorf("centred sticks must not stream, got %d extra", len(fa.servos)-sent)
	}
}

func TestNoStreamingWithoutDeadman(t *testing.T) {
	m, fa := newTestMode(t)

	m.handleSample(sample(nil, map[int]float64{joystick.AxisLStickY: -1}))
	m.tick()
	m.tick()
	if len(fa.servos) != 0 {
		t.Errorf("streaming without the deadman is forbidden, got %d poses", len(fa.servos))
	}
}

func TestGripperTriggersAreEdgeDetected(t *testing.T) {
	m, _ := newTestMode(t)

	m.handleSample(sample(map[int]int32{joystick.ButtonCross: 1}, nil))
	if got := testutil.ToFloat64(m.stats.GripperActuations); got != 1 {
		t.Fatalf("expected 1 actuation, got %f", got)
	}

	// Still held: no second actuation, however long it is held.
	m.handleSample(sample(map[int]int32{joystick.ButtonCross: 1}, nil))
	m.handleSample(sample(map[int]int32{joystick.ButtonCross: 1}, nil))
	if got := testutil.ToFloat64(m.stats.GripperActuations); got != 1 {
		t.Errorf("held button repeated the actuation, got %f", got)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
