package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Joystick.Device != "/dev/input/js0" {
		t.Errorf("got device %q", cfg.Joystick.Device)
	}
	if cfg.Arm.DashboardPort != 29999 {
		t.Errorf("got dashboard port %d", cfg.Arm.DashboardPort)
	}
	if cfg.Teleop.CommandInterval != 33*time.Millisecond {
		t.Errorf("got command interval %v", cfg.Teleop.CommandInterval)
	}
	if cfg.Teleop.LimitZ != (Range{Min: 155, Max: 750}) {
		t.Errorf("got z limit %+v", cfg.Teleop.LimitZ)
	}
	if cfg.Gripper.Host != cfg.Arm.Host {
		t.Errorf("gripper host should default to arm host")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := `
joystick:
  device: /dev/input/js7
arm:
  host: 10.0.0.5
teleop:
  max_jump_mm: 55
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ARM_HOST", "10.0.0.99")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Joystick.Device != "/dev/input/js7" {
		t.Errorf("got device %q", cfg.Joystick.Device)
	}
	if cfg.Arm.Host != "10.0.0.99" {
		t.Errorf("env should override file, got %q", cfg.Arm.Host)
	}
	if cfg.Teleop.MaxJumpMM != 55 {
		t.Errorf("got max jump %f", cfg.Teleop.MaxJumpMM)
	}
	// Unset fields still get defaults.
	if cfg.Teleop.MinMoveMM != 2 {
		t.Errorf("got min move %f", cfg.Teleop.MinMoveMM)
	}
}

func TestValidateRejectsBadLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := `
teleop:
  limit_x:
    min: 100
    max: -100
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for inverted limit")
	}
}

func TestRangeClamp(t *testing.T) {
	r := Range{Min: -800, Max: 0}
	for _, tc := range []struct{ in, want float64 }{
		{-900, -800},
		{-800, -800},
		{-400, -400},
		{0, 0},
		{10, 0},
	} {
		if got := r.Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
