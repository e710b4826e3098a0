package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	Joystick JoystickConfig `yaml:"joystick"`
	Arm      ArmConfig      `yaml:"arm"`
	Teleop   TeleopConfig   `yaml:"teleop"`
	Gripper  GripperConfig  `yaml:"gripper"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Sounds   SoundConfig    `yaml:"sounds"`
	Record   RecordConfig   `yaml:"record"`
}

type JoystickConfig struct {
	Device string `yaml:"device" env:"JOYSTICK_DEVICE"`
}

type ArmConfig struct {
	Host          string `yaml:"host" env:"ARM_HOST"`
	DashboardPort int    `yaml:"dashboard_port"`
}

// Range is a closed interval in workspace coordinates.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

type TeleopConfig struct {
	// Workspace limits the streamed target pose is clamped to, in mm.
	LimitX Range `yaml:"limit_x"`
	LimitY Range `yaml:"limit_y"`
	LimitZ Range `yaml:"limit_z"`

	// Commands that would move the tool further than MaxJumpMM in one
	// step are discarded; ones below MinMoveMM are not worth sending.
	MaxJumpMM float64 `yaml:"max_jump_mm"`
	MinMoveMM float64 `yaml:"min_move_mm"`

	CommandInterval time.Duration `yaml:"command_interval"`

	// Full stick deflection moves the tool at this speed.
	StickSpeedMM  float64 `yaml:"stick_speed_mm_per_s"`
	StickSpeedDeg float64 `yaml:"stick_speed_deg_per_s"`
}

type GripperConfig struct {
	Host    string        `yaml:"host" env:"GRIPPER_HOST"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
	Settle  time.Duration `yaml:"settle"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

type SoundConfig struct {
	Dir string `yaml:"dir"`
}

type RecordConfig struct {
	DataRoot string  `yaml:"data_root"`
	CameraID int     `yaml:"camera_id"`
	FPS      float64 `yaml:"fps"`
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
}

// Load reads the YAML config at path (a missing file just means defaults),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Joystick.Device == "" {
		c.Joystick.Device = "/dev/input/js0"
	}
	if c.Arm.Host == "" {
		c.Arm.Host = "192.168.1.6"
	}
	if c.Arm.DashboardPort == 0 {
		c.Arm.DashboardPort = 29999
	}

	zero := Range{}
	if c.Teleop.LimitX == zero {
		c.Teleop.LimitX = Range{Min: -800, Max: 0}
	}
	if c.Teleop.LimitY == zero {
		c.Teleop.LimitY = Range{Min: -500, Max: 500}
	}
	if c.Teleop.LimitZ == zero {
		c.Teleop.LimitZ = Range{Min: 155, Max: 750}
	}
	if c.Teleop.MaxJumpMM == 0 {
		c.Teleop.MaxJumpMM = 40
	}
	if c.Teleop.MinMoveMM == 0 {
		c.Teleop.MinMoveMM = 2
	}
	if c.Teleop.CommandInterval == 0 {
		c.Teleop.CommandInterval = 33 * time.Millisecond
	}
	if c.Teleop.StickSpeedMM == 0 {
		c.Teleop.StickSpeedMM = 120
	}
	if c.Teleop.StickSpeedDeg == 0 {
		c.Teleop.StickSpeedDeg = 30
	}

	if c.Gripper.Host == "" {
		c.Gripper.Host = c.Arm.Host
	}
	if c.Gripper.Port == 0 {
		c.Gripper.Port = 22000
	}
	if c.Gripper.Timeout == 0 {
		c.Gripper.Timeout = 2 * time.Second
	}
	if c.Gripper.Settle == 0 {
		c.Gripper.Settle = 1 * time.Second
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Sounds.Dir == "" {
		c.Sounds.Dir = "/sounds"
	}

	if c.Record.DataRoot == "" {
		c.Record.DataRoot = "."
	}
	if c.Record.FPS == 0 {
		c.Record.FPS = 15
	}
	if c.Record.Width == 0 {
		c.Record.Width = 640
	}
	if c.Record.Height == 0 {
		c.Record.Height = 480
	}
}

func (c *Config) validate() error {
	for name, r := range map[string]Range{
		"limit_x": c.Teleop.LimitX,
		"limit_y": c.Teleop.LimitY,
		"limit_z": c.Teleop.LimitZ,
	} {
		if r.Min > r.Max {
			return fmt.Errorf("teleop %s: min %f > max %f", name, r.Min, r.Max)
		}
	}
	if c.Teleop.MinMoveMM > c.Teleop.MaxJumpMM {
		return fmt.Errorf("teleop min_move_mm %f > max_jump_mm %f",
			c.Teleop.MinMoveMM, c.Teleop.MaxJumpMM)
	}
	if c.Record.FPS < 0 {
		return fmt.Errorf("record fps must be positive")
	}
	return nil
}
