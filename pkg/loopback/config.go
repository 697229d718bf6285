package loopback

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the fixed session parameters. Sample rate, channel count
// and latency target are construction-time values; nothing here changes
// while a session is live.
type Config struct {
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	PeriodFrames    int     `json:"period_frames"`
	TargetLatencyMs float64 `json:"target_latency_ms"`
	InputDeviceID   *int    `json:"input_device_id,omitempty"`
	OutputDeviceID  *int    `json:"output_device_id,omitempty"`
	MaxDeviceRetries int    `json:"max_device_retries"`
	RetryDelay      float64 `json:"retry_delay"`
	TapPath         string  `json:"tap_path,omitempty"`
	MonitorAddr     string  `json:"monitor_addr,omitempty"`
	DebugLevel      string  `json:"debug_level"`
}

// NewConfig returns a config with low-latency defaults, overridden by
// LOOPBACK_* environment variables (a .env file is honored if present).
func NewConfig() *Config {
	c := &Config{
		SampleRate:       48000,
		Channels:         1,
		PeriodFrames:     128,
		TargetLatencyMs:  20.0,
		MaxDeviceRetries: 3,
		RetryDelay:       0.5,
		DebugLevel:       "INFO",
	}

	c.loadFromEnv()

	return c
}

func (c *Config) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if v := os.Getenv("LOOPBACK_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SampleRate = n
		}
	}
	if v := os.Getenv("LOOPBACK_CHANNELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Channels = n
		}
	}
	if v := os.Getenv("LOOPBACK_PERIOD_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PeriodFrames = n
		}
	}
	if v := os.Getenv("LOOPBACK_TARGET_LATENCY_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TargetLatencyMs = f
		}
	}
	if v := os.Getenv("LOOPBACK_INPUT_DEVICE_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.InputDeviceID = &n
		}
	}
	if v := os.Getenv("LOOPBACK_OUTPUT_DEVICE_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.OutputDeviceID = &n
		}
	}
	if v := os.Getenv("LOOPBACK_MAX_DEVICE_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDeviceRetries = n
		}
	}
	if v := os.Getenv("LOOPBACK_RETRY_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RetryDelay = f
		}
	}
	if v := os.Getenv("LOOPBACK_TAP_PATH"); v != "" {
		c.TapPath = v
	}
	if v := os.Getenv("LOOPBACK_MONITOR_ADDR"); v != "" {
		c.MonitorAddr = v
	}
	if v := os.Getenv("LOOPBACK_DEBUG_LEVEL"); v != "" {
		c.DebugLevel = v
	}
}

// RingFrames returns the ring capacity target in frames: the configured
// latency budget at the configured sample rate, floored at two device
// periods. The ring itself rounds this up to a power of two; anything
// larger only adds worst-case latency under sustained rate mismatch.
func (c *Config) RingFrames() int {
	frames := int(c.TargetLatencyMs * float64(c.SampleRate) / 1000.0)
	if min := 2 * c.PeriodFrames; frames < min {
		frames = min
	}
	if frames < 1 {
		frames = 1
	}
	return frames
}

// Validate returns list of issues
func (c *Config) Validate() []string {
	issues := []string{}

	if c.SampleRate <= 0 {
		issues = append(issues, fmt.Sprintf("Invalid sample rate: %d", c.SampleRate))
	}
	if c.Channels <= 0 {
		issues = append(issues, fmt.Sprintf("Invalid channel count: %d", c.Channels))
	}
	if c.PeriodFrames <= 0 {
		issues = append(issues, fmt.Sprintf("Invalid period size: %d frames", c.PeriodFrames))
	}
	if c.TargetLatencyMs <= 0 {
		issues = append(issues, fmt.Sprintf("Invalid target latency: %.1fms", c.TargetLatencyMs))
	}
	if c.MaxDeviceRetries < 0 {
		issues = append(issues, fmt.Sprintf("Invalid retry count: %d", c.MaxDeviceRetries))
	}
	if c.RetryDelay < 0 {
		issues = append(issues, fmt.Sprintf("Invalid retry delay: %.1fs", c.RetryDelay))
	}

	return issues
}

// check is the strict form of Validate used by Engine.Start.
func (c *Config) check() *LoopbackError {
	issues := c.Validate()
	if len(issues) == 0 {
		return nil
	}
	return NewConfigError(issues[0]).AddDetail("issues", issues)
}

// PrintConfig writes the effective configuration to stdout.
func (c *Config) PrintConfig() {
	fmt.Println("Loopback SDK Configuration")
	fmt.Println("==================================================")
	fmt.Printf("Sample Rate: %d Hz\n", c.SampleRate)
	fmt.Printf("Channels: %d\n", c.Channels)
	fmt.Printf("Period: %d frames\n", c.PeriodFrames)
	fmt.Printf("Target Latency: %.1f ms (ring %d frames)\n", c.TargetLatencyMs, nextPowerOfTwo(c.RingFrames()))
	if c.InputDeviceID != nil {
		fmt.Printf("Input Device ID: %d\n", *c.InputDeviceID)
	} else {
		fmt.Println("Input Device: Default")
	}
	if c.OutputDeviceID != nil {
		fmt.Printf("Output Device ID: %d\n", *c.OutputDeviceID)
	} else {
		fmt.Println("Output Device: Default")
	}
	fmt.Printf("Max Device Retries: %d\n", c.MaxDeviceRetries)
	fmt.Printf("Retry Delay: %.1fs\n", c.RetryDelay)
	if c.TapPath != "" {
		fmt.Printf("Tap: %s\n", c.TapPath)
	}
	if c.MonitorAddr != "" {
		fmt.Printf("Monitor: %s\n", c.MonitorAddr)
	}
	fmt.Printf("Debug Level: %s\n", c.DebugLevel)
}
