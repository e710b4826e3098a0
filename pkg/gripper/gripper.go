package gripper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/enetx/fsm"
)

// The CR5's tool data exchange endpoint drives the gripper directly; the
// payloads below are the vendor register writes for our Hitbot gripper.
var payloads = map[Action][]int{
	Close: {1, 6, 1, 3, 0, 0, 120, 54},
	Open:  {1, 6, 1, 3, 3, 232, 120, 136},
}

type Action string

const (
	Open  Action = "open"
	Close Action = "close"
)

// Actuation states.  While the machine is away from idle the gripper holds
// the teleop lock: pose streaming and further triggers are refused until
// the tool has settled.
const (
	StateIdle      fsm.State = "idle"
	StateActuating fsm.State = "actuating"
	StateSettling  fsm.State = "settling"
)

const (
	eventTrigger fsm.Event = "trigger"
	eventSent    fsm.Event = "sent"
	eventSettled fsm.Event = "settled"
)

type Gripper struct {
	url     string
	client  *http.Client
	machine *fsm.FSM
	settle  time.Duration

	// PreDelay gives streamed motion a moment to stop before the tool
	// fires; the settle delay afterwards lets the fingers finish moving.
	PreDelay time.Duration

	// OnIdle is called when an actuation completes and the lock is
	// released; the controller uses it to re-enable the arm.
	OnIdle func()

	// 1 while the gripper is (being) opened, 0 while closed.
	openVal atomic.Int32
}

func New(host string, port int, timeout, settle time.Duration) *Gripper {
	g := &Gripper{
		url:      fmt.Sprintf("http://%s:%d/interface/toolDataExchange", host, port),
		client:   &http.Client{Timeout: timeout},
		settle:   settle,
		PreDelay: 300 * time.Millisecond,
	}
	g.openVal.Store(1) // Fingers start open.

	g.machine = fsm.New(StateIdle).
		Transition(StateIdle, eventTrigger, StateActuating).
		Transition(StateActuating, eventSent, StateSettling).
		Transition(StateSettling, eventSettled, StateIdle).
		OnEnter(StateActuating, func(ctx *fsm.Context) error {
			action, ok := ctx.Input.(Action)
			if !ok {
				return fmt.Errorf("gripper trigger input %v is not an Action", ctx.Input)
			}
			go g.run(action)
			return nil
		}).
		OnEnter(StateIdle, func(*fsm.Context) error {
			if g.OnIdle != nil {
				g.OnIdle()
			}
			return nil
		})

	return g
}

// Trigger starts an open or close actuation.  It fails if one is already
// in flight.
func (g *Gripper) Trigger(action Action) error {
	if err := g.machine.Trigger(eventTrigger, action); err != nil {
		return fmt.Errorf("gripper busy: %w", err)
	}
	if action == Open {
		g.openVal.Store(1)
	} else {
		g.openVal.Store(0)
	}
	return nil
}

// Locked reports whether an actuation is in flight.
func (g *Gripper) Locked() bool {
	return g.machine.Current() != StateIdle
}

// Value is the gripper state for the episode recorder: 1 open, 0 closed.
func (g *Gripper) Value() float64 {
	return float64(g.openVal.Load())
}

func (g *Gripper) run(action Action) {
	time.Sleep(g.PreDelay)
	if err := g.post(action); err != nil {
		// The lock must still release, so keep walking the states.
		fmt.Printf("Gripper %s failed: %v\n", action, err)
	}
	g.machine.Trigger(eventSent)
	time.Sleep(g.settle)
	g.machine.Trigger(eventSettled)
}

func (g *Gripper) post(action Action) error {
	body, err := json.Marshal(map[string][]int{"value": payloads[action]})
	if err != nil {
		return err
	}
	resp, err := g.client.Post(g.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tool data exchange returned %s", resp.Status)
	}
	return nil
}
