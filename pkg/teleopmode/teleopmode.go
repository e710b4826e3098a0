package teleopmode

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/armlab/cr5-teleop/pkg/arm"
	"github.com/armlab/cr5-teleop/pkg/config"
	"github.com/armlab/cr5-teleop/pkg/gripper"
	"github.com/armlab/cr5-teleop/pkg/joystick"
	"github.com/armlab/cr5-teleop/pkg/sound"
	"github.com/armlab/cr5-teleop/pkg/stats"
)

const (
	expo = 1.6

	// Rotation-only moves below this don't get streamed.
	minYawDeg = 0.5
)

// TeleopMode drives the arm from the pad.  L1 is the deadman: nothing
// moves unless it is held.  While held, the sticks stream clamped target
// poses and the D-pad (plus Triangle/Square, with R1 switching from
// translation to rotation) jogs one axis at a time.  Cross closes the
// gripper, Circle opens it.
type TeleopMode struct {
	armLock sync.Mutex // Guards access to the arm
	Arm     arm.Interface

	grip   *gripper.Gripper
	stats  *stats.Stats
	sounds chan<- string
	cfg    config.TeleopConfig

	cancel      context.CancelFunc
	stopWG      sync.WaitGroup
	samples     chan joystick.Sample
	rebaselineC chan struct{}

	// State below is only touched by the loop goroutine.
	l1Held     bool
	crossHeld  bool
	circleHeld bool
	lastJog    [6]int
	jogging    bool

	vx, vy, vz, vyaw float64
	target           arm.Pose
	lastSent         arm.Pose
	baselined        bool
}

func New(a arm.Interface, grip *gripper.Gripper, st *stats.Stats, sounds chan<- string, cfg config.TeleopConfig) *TeleopMode {
	return &TeleopMode{
		Arm:         a,
		grip:        grip,
		stats:       st,
		sounds:      sounds,
		cfg:         cfg,
		samples:     make(chan joystick.Sample),
		rebaselineC: make(chan struct{}, 1),
	}
}

func (m *TeleopMode) Name() string {
	return "Teleop mode"
}

func (m *TeleopMode) Start(ctx context.Context) {
	m.stopWG.Add(1)
	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	go m.loop(loopCtx)
}

func (m *TeleopMode) Stop() {
	m.cancel()
	m.stopWG.Wait()
}

func (m *TeleopMode) OnJoystickSample(s joystick.Sample) {
	m.samples <- s
}

// RequestRebaseline asks the loop to re-read the arm pose before the next
// streamed command; used after a gripper actuation may have disturbed it.
func (m *TeleopMode) RequestRebaseline() {
	select {
	case m.rebaselineC <- struct{}{}:
	default:
	}
}

func (m *TeleopMode) loop(ctx context.Context) {
	defer m.stopWG.Done()
	defer m.stopJog()

	ticker := time.NewTicker(m.cfg.CommandInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.samples:
			m.handleSample(s)
		case <-m.rebaselineC:
			m.rebaseline()
		case <-ticker.C:
			m.tick()
		}
	}
}

// handleSample is invoked once per sample, in delivery order.
func (m *TeleopMode) handleSample(s joystick.Sample) {
	m.stats.SamplesReceived.Inc()
	if len(s.Buttons) <= joystick.ButtonR1 || len(s.Axes) <= joystick.AxisDPadY {
		fmt.Printf("Ignoring short joystick sample: %d buttons, %d axes\n",
			len(s.Buttons), len(s.Axes))
		m.stats.SamplesMalformed.Inc()
		return
	}

	// Edge-detect the deadman.  The press edge re-baselines streaming
	// from the arm's actual pose; the release edge stops all motion.
	l1 := s.Buttons[joystick.ButtonL1] != 0
	pressed := l1 && !m.l1Held
	released := !l1 && m.l1Held
	m.l1Held = l1
	if pressed {
		m.stats.DeadmanHeld.Set(1)
		m.rebaseline()
	}
	if released {
		m.stats.DeadmanHeld.Set(0)
		m.stopJog()
		m.vx, m.vy, m.vz, m.vyaw = 0, 0, 0, 0
	}

	cross := s.Buttons[joystick.ButtonCross] != 0
	circle := s.Buttons[joystick.ButtonCircle] != 0
	if cross && !m.crossHeld {
		m.triggerGripper(gripper.Close, sound.CueGripperClose)
	}
	if circle && !m.circleHeld {
		m.triggerGripper(gripper.Open, sound.CueGripperOpen)
	}
	m.crossHeld = cross
	m.circleHeld = circle

	if l1 {
		// Left stick translates in the XY plane, right stick does
		// height and yaw.  Stick up is away from the base.
		m.vx = applyExpo(-s.Axes[joystick.AxisLStickY], expo)
		m.vy = applyExpo(-s.Axes[joystick.AxisLStickX], expo)
		m.vz = applyExpo(-s.Axes[joystick.AxisRStickY], expo)
		m.vyaw = applyExpo(s.Axes[joystick.AxisRStickX], expo)
	}

	var zero [6]int
	jog := zero
	if l1 {
		jog = deriveJog(s)
	}
	if jog != m.lastJog {
		if jog == zero {
			if m.jogging {
				m.stopJog()
			}
		} else {
			m.move(jog[:])
		}
	}
	m.lastJog = jog
}

// deriveJog maps the D-pad and face buttons to the 6-entry jog vector of
// the arm.Interface.Move contract.  R1 shifts the mapping from x/y/z to
// rx/ry/rz.
func deriveJog(s joystick.Sample) [6]int {
	var j [6]int
	base := 0
	if s.Buttons[joystick.ButtonR1] != 0 {
		base = 3
	}
	dy := s.Axes[joystick.AxisDPadY]
	dx := s.Axes[joystick.AxisDPadX]
	if dy < -0.5 {
		j[base] = 1
	} else if dy > 0.5 {
		j[base] = -1
	}
	if dx > 0.5 {
		j[base+1] = 1
	} else if dx < -0.5 {
		j[base+1] = -1
	}
	if s.Buttons[joystick.ButtonTriangle] != 0 {
		j[base+2] = 1
	} else if s.Buttons[joystick.ButtonSquare] != 0 {
		j[base+2] = -1
	}
	return j
}

// move issues a jog vector to the arm.
func (m *TeleopMode) move(values []int) {
	m.armLock.Lock()
	err := m.Arm.Move(values)
	m.armLock.Unlock()
	if err != nil {
		fmt.Println("Failed to jog arm:", err)
		return
	}
	m.jogging = true
	m.stats.JogCommands.Inc()
}

func (m *TeleopMode) stopJog() {
	m.armLock.Lock()
	err := m.Arm.StopJog()
	m.armLock.Unlock()
	if err != nil {
		fmt.Println("Failed to stop jog:", err)
	}
	m.jogging = false
}

func (m *TeleopMode) rebaseline() {
	m.armLock.Lock()
	p, err := m.Arm.GetPose()
	m.armLock.Unlock()
	if err != nil {
		fmt.Println("Failed to read arm pose:", err)
		m.baselined = false
		return
	}
	m.target = p
	m.lastSent = p
	m.baselined = true
}

// tick streams one pose command if the sticks have asked for motion.
func (m *TeleopMode) tick() {
	if !m.l1Held || !m.baselined || m.grip.Locked() {
		return
	}

	dt := m.cfg.CommandInterval.Seconds()
	m.target.X = m.cfg.LimitX.Clamp(m.target.X + m.vx*m.cfg.StickSpeedMM*dt)
	m.target.Y = m.cfg.LimitY.Clamp(m.target.Y + m.vy*m.cfg.StickSpeedMM*dt)
	m.target.Z = m.cfg.LimitZ.Clamp(m.target.Z + m.vz*m.cfg.StickSpeedMM*dt)
	m.target.Rz += m.vyaw * m.cfg.StickSpeedDeg * dt

	moved := arm.Distance(m.target, m.lastSent)
	yawMoved := math.Abs(m.target.Rz - m.lastSent.Rz)
	if moved < m.cfg.MinMoveMM && yawMoved < minYawDeg {
		return
	}
	if moved > m.cfg.MaxJumpMM {
		// Runaway target; re-anchor on the real pose rather than lurch.
		fmt.Printf("Target jumped %.1fmm, re-baselining\n", moved)
		m.rebaseline()
		return
	}

	m.armLock.Lock()
	err := m.Arm.ServoP(m.target)
	m.armLock.Unlock()
	if err != nil {
		fmt.Println("Failed to stream pose:", err)
		return
	}
	m.lastSent = m.target
	m.stats.ServoCommands.Inc()
}

func (m *TeleopMode) triggerGripper(action gripper.Action, cue string) {
	if err := m.grip.Trigger(action); err != nil {
		fmt.Println(err)
		return
	}
	m.stats.GripperActuations.Inc()
	m.playCue(cue)
}

func (m *TeleopMode) playCue(cue string) {
	if m.sounds == nil {
		return
	}
	select {
	case m.sounds <- cue:
	default:
	}
}

func applyExpo(value float64, expo float64) float64 {
	absVal := math.Abs(value)
	absExpo := math.Pow(absVal, expo)
	signedExpo := math.Copysign(absExpo, value)
	return signedExpo
}
