package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/armlab/cr5-teleop/pkg/arm"
	"github.com/armlab/cr5-teleop/pkg/config"
	"github.com/armlab/cr5-teleop/pkg/gripper"
	"github.com/armlab/cr5-teleop/pkg/joystick"
	"github.com/armlab/cr5-teleop/pkg/pausemode"
	"github.com/armlab/cr5-teleop/pkg/recordmode"
	"github.com/armlab/cr5-teleop/pkg/sound"
	"github.com/armlab/cr5-teleop/pkg/stats"
	"github.com/armlab/cr5-teleop/pkg/teleopmode"
)

type Mode interface {
	Name() string
	Start(ctx context.Context)
	Stop()
}

type SampleUser interface {
	OnJoystickSample(s joystick.Sample)
}

func main() {
	fmt.Println("---- CR5 teleop ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	configPath := flag.String("config", "/cfg/cr5-teleop.yaml", "config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalln("Failed to load config:", err)
	}
	fmt.Printf("Using config: %+v\n", *cfg)

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())

	// Hook Ctrl-C etc.
	registerSignalHandlers(cancel)

	st := stats.New()
	go func() {
		if err := stats.Serve(cfg.Metrics.Addr); err != nil {
			fmt.Println("Metrics server failed:", err)
		}
	}()

	sounds := sound.InitPlayer(cfg.Sounds.Dir)

	armAddr := fmt.Sprintf("%s:%d", cfg.Arm.Host, cfg.Arm.DashboardPort)
	a, err := connectArm(armAddr, st)
	if err != nil {
		fmt.Printf("Failed to connect to arm: %v.\n", err)
		cancel()
		return
	}
	defer func() {
		fmt.Println("Stopping jog for shut down")
		a.StopJog()
		a.Close()
		time.Sleep(100 * time.Millisecond)
	}()

	if err := arm.Startup(ctx, a); err != nil {
		fmt.Println("Arm startup aborted:", err)
		return
	}
	fmt.Println("Arm enabled")

	grip := gripper.New(cfg.Gripper.Host, cfg.Gripper.Port, cfg.Gripper.Timeout, cfg.Gripper.Settle)

	teleop := teleopmode.New(a, grip, st, sounds, cfg.Teleop)
	grip.OnIdle = func() {
		// The tool exchange can trip the controller into a soft stop;
		// wake it and re-anchor streaming on the real pose.
		if err := a.Enable(); err != nil {
			fmt.Println("Failed to re-enable arm:", err)
		}
		teleop.RequestRebaseline()
	}

	// Wait for the joystick and kick off a background thread to read from it.
	samples := initJoystick(cancel, ctx, cfg.Joystick.Device)

	allModes := []Mode{
		teleop,
		recordmode.New(a, grip, sounds, cfg.Record),
		&pausemode.PauseMode{Arm: a},
	}
	var activeMode Mode = allModes[0]
	fmt.Printf("----- %s -----\n", activeMode.Name())
	activeMode.Start(ctx)
	activeModeIdx := 0

	switchMode := func(delta int) {
		fmt.Println("Mode switch", delta)
		activeMode.Stop()
		a.StopJog()
		activeModeIdx += delta
		activeModeIdx = (activeModeIdx + len(allModes)) % len(allModes)
		activeMode = allModes[activeModeIdx]
		fmt.Printf("----- %s -----\n", activeMode.Name())
		select {
		case sounds <- sound.CueMode:
		default:
		}
		activeMode.Start(ctx)
	}

	var optionsHeld, shareHeld bool
	watchdog := time.NewTicker(5 * time.Second)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Context done, stopping active mode and shutting down")
			activeMode.Stop()
			cancel()
			time.Sleep(1 * time.Second)
			return
		case s, ok := <-samples:
			if !ok {
				fmt.Println("Joystick sample channel closed!")
				activeMode.Stop()
				cancel()
				time.Sleep(1 * time.Second)
				return
			}
			// Intercept Options/Share to implement mode switching.
			options := buttonDown(s, joystick.ButtonOptions)
			share := buttonDown(s, joystick.ButtonShare)
			if options && !optionsHeld {
				fmt.Printf("Options pressed: switching modes >>\n")
				optionsHeld, shareHeld = options, share
				switchMode(1)
				continue
			}
			if share && !shareHeld {
				fmt.Printf("Share pressed: switching modes <<\n")
				optionsHeld, shareHeld = options, share
				switchMode(-1)
				continue
			}
			optionsHeld, shareHeld = options, share

			// Pass samples through if this mode consumes them.
			if su, ok := activeMode.(SampleUser); ok {
				done := make(chan struct{})
				go func() {
					defer close(done)
					su.OnJoystickSample(s)
				}()
				timeout := time.NewTimer(1 * time.Second)
				select {
				case <-done:
					timeout.Stop()
				case <-timeout.C:
					// Modes are supposed to just queue the sample to their
					// background thread.  Blocking this long means deadlock.
					panic("Deadlock? Active mode blocked OnJoystickSample for >1s")
				}
			}
		case <-watchdog.C:
			fmt.Println("Main loop still running")
		}
	}
}

func buttonDown(s joystick.Sample, n int) bool {
	return n < len(s.Buttons) && s.Buttons[n] != 0
}

func connectArm(addr string, st *stats.Stats) (arm.Interface, error) {
	c, err := arm.New(addr)
	if err != nil {
		if os.Getenv("IGNORE_MISSING_ARM") == "true" {
			fmt.Println("Using dummy arm")
			return arm.Dummy(), nil
		}
		return nil, err
	}
	c.OnRetry = st.ArmRetries.Inc
	return c, nil
}

func initJoystick(cancel context.CancelFunc, ctx context.Context, device string) chan joystick.Sample {
	samples := make(chan joystick.Sample, 1)
	firstLog := true
	for {
		j, err := joystick.NewJoystick(device)
		if err != nil {
			if firstLog {
				fmt.Printf("Waiting for joystick: %v.\n", err)
				firstLog = false
			}
			time.Sleep(1 * time.Second)
			continue
		}

		fmt.Printf("Opened joystick\n")
		go func() {
			defer cancel()
			defer j.Close()
			err := loopReadingJoystick(ctx, j, samples)
			fmt.Printf("Joystick failed: %v\n", err)
		}()
		break
	}
	return samples
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}

// loopReadingJoystick folds the device's change events into complete pad
// samples and publishes one sample per event, in event order.
func loopReadingJoystick(ctx context.Context, j *joystick.Joystick, samples chan joystick.Sample) error {
	defer close(samples)
	defer j.Close()
	var state joystick.State
	for ctx.Err() == nil {
		event, err := j.ReadEvent()
		if err != nil {
			fmt.Printf("Failed to read from joystick: %v.\n", err)
			return err
		}
		state.Apply(event)
		samples <- state.Snapshot(event.Time)
	}
	return ctx.Err()
}
