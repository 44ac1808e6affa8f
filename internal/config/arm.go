package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/armguard/internal/safety"
)

// DefaultConfigPath is the path to the canonical arm defaults file.
const DefaultConfigPath = "config/arm.defaults.json"

// LimitsConfig holds optional per-joint ranges. A nil joint keeps the stock range.
type LimitsConfig struct {
	Base     *safety.Range `json:"base,omitempty"`
	Shoulder *safety.Range `json:"shoulder,omitempty"`
	Elbow    *safety.Range `json:"elbow,omitempty"`
	Wrist    *safety.Range `json:"wrist,omitempty"`
	Gripper  *safety.Range `json:"gripper,omitempty"`
}

// ArmConfig is the root configuration for the arm gate. Every field is
// optional; the Get* methods fall back to the stock values.
type ArmConfig struct {
	// Safety validator
	Limits         *LimitsConfig           `json:"limits,omitempty"`
	MaxJointChange *int                    `json:"max_joint_change,omitempty"`
	CollisionZones *[]safety.CollisionZone `json:"collision_zones,omitempty"`
	ShoulderLength *float64                `json:"shoulder_length,omitempty"`
	ElbowLength    *float64                `json:"elbow_length,omitempty"`
	WristLength    *float64                `json:"wrist_length,omitempty"`

	// Emergency policy
	MinClearance   *float64 `json:"min_clearance,omitempty"`
	MaxForce       *float64 `json:"max_force,omitempty"`
	MaxTemperature *float64 `json:"max_temperature,omitempty"`
	MaxSpeed       *float64 `json:"max_speed,omitempty"`

	// Hardware link
	Port     *string `json:"port,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty"`

	// Link settle delays, duration strings like "500ms"
	CommandDelay *string `json:"command_delay,omitempty"`
	ModeDelay    *string `json:"mode_delay,omitempty"`
	AxisDelay    *string `json:"axis_delay,omitempty"`
	ResetDelay   *string `json:"reset_delay,omitempty"`
}

// EmptyArmConfig returns an ArmConfig with all fields unset.
func EmptyArmConfig() *ArmConfig {
	return &ArmConfig{}
}

// LoadArmConfig loads an ArmConfig from a JSON file. The file must have a
// .json extension and be under 1MB. Fields omitted from the file keep their
// stock values.
func LoadArmConfig(path string) (*ArmConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyArmConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *ArmConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadArmConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the configuration. Joint ranges and zones are checked here,
// at load time, so the validator never sees an inverted range.
func (c *ArmConfig) Validate() error {
	if err := c.GetSafetyConfig().Validate(); err != nil {
		return err
	}

	if c.MinClearance != nil && *c.MinClearance < 0 {
		return fmt.Errorf("min_clearance must be non-negative, got %f", *c.MinClearance)
	}
	if c.MaxForce != nil && *c.MaxForce <= 0 {
		return fmt.Errorf("max_force must be positive, got %f", *c.MaxForce)
	}
	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}

	for name, v := range map[string]*string{
		"command_delay": c.CommandDelay,
		"mode_delay":    c.ModeDelay,
		"axis_delay":    c.AxisDelay,
		"reset_delay":   c.ResetDelay,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	return nil
}

// GetSafetyConfig merges the configured values over safety.DefaultConfig.
func (c *ArmConfig) GetSafetyConfig() safety.Config {
	cfg := safety.DefaultConfig()
	if l := c.Limits; l != nil {
		for _, o := range []struct {
			src *safety.Range
			dst *safety.Range
		}{
			{l.Base, &cfg.Limits.Base},
			{l.Shoulder, &cfg.Limits.Shoulder},
			{l.Elbow, &cfg.Limits.Elbow},
			{l.Wrist, &cfg.Limits.Wrist},
			{l.Gripper, &cfg.Limits.Gripper},
		} {
			if o.src != nil {
				*o.dst = *o.src
			}
		}
	}
	if c.MaxJointChange != nil {
		cfg.MaxJointChange = *c.MaxJointChange
	}
	if c.CollisionZones != nil {
		cfg.Zones = append([]safety.CollisionZone(nil), (*c.CollisionZones)...)
	}
	if c.ShoulderLength != nil {
		cfg.Links.Shoulder = *c.ShoulderLength
	}
	if c.ElbowLength != nil {
		cfg.Links.Elbow = *c.ElbowLength
	}
	if c.WristLength != nil {
		cfg.Links.Wrist = *c.WristLength
	}
	return cfg
}

// GetEmergencyLimits merges the configured thresholds over the stock ones.
func (c *ArmConfig) GetEmergencyLimits() safety.EmergencyLimits {
	limits := safety.DefaultEmergencyLimits()
	if c.MinClearance != nil {
		limits.MinClearance = *c.MinClearance
	}
	if c.MaxForce != nil {
		limits.MaxForce = *c.MaxForce
	}
	if c.MaxTemperature != nil {
		limits.MaxTemperature = *c.MaxTemperature
	}
	if c.MaxSpeed != nil {
		limits.MaxSpeed = *c.MaxSpeed
	}
	return limits
}

// GetPort returns the serial device path or the default.
func (c *ArmConfig) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return "/dev/ttyUSB0"
	}
	return *c.Port
}

// GetBaudRate returns the serial baud rate or the default.
func (c *ArmConfig) GetBaudRate() int {
	if c.BaudRate == nil || *c.BaudRate == 0 {
		return 9600
	}
	return *c.BaudRate
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetCommandDelay is the pause after each single-byte command.
func (c *ArmConfig) GetCommandDelay() time.Duration {
	return durationOr(c.CommandDelay, 100*time.Millisecond)
}

// GetModeDelay is the pause after entering manual mode.
func (c *ArmConfig) GetModeDelay() time.Duration {
	return durationOr(c.ModeDelay, 200*time.Millisecond)
}

// GetAxisDelay is the pause after each joint target.
func (c *ArmConfig) GetAxisDelay() time.Duration {
	return durationOr(c.AxisDelay, 500*time.Millisecond)
}

// GetResetDelay is the wait for the controller board to reset after the port opens.
func (c *ArmConfig) GetResetDelay() time.Duration {
	return durationOr(c.ResetDelay, 2*time.Second)
}
