package loopback

import (
	"strings"
	"testing"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("Channels = %d, want 1", cfg.Channels)
	}
	if cfg.PeriodFrames != 128 {
		t.Errorf("PeriodFrames = %d, want 128", cfg.PeriodFrames)
	}
	if cfg.TargetLatencyMs != 20.0 {
		t.Errorf("TargetLatencyMs = %v, want 20.0", cfg.TargetLatencyMs)
	}
	if issues := cfg.Validate(); len(issues) != 0 {
		t.Errorf("default config has issues: %v", issues)
	}
}

func TestConfig_RingFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rate    int
		latency float64
		period  int
		want    int
	}{
		{"latency budget dominates", 48000, 20, 128, 960},
		{"floors at two periods", 48000, 1, 128, 256},
		{"small rate small period", 8000, 1, 4, 8},
		{"exactly two periods", 48000, 2, 48, 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				SampleRate:      tt.rate,
				TargetLatencyMs: tt.latency,
				PeriodFrames:    tt.period,
			}
			if got := cfg.RingFrames(); got != tt.want {
				t.Errorf("RingFrames() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		SampleRate:       0,
		Channels:         -1,
		PeriodFrames:     128,
		TargetLatencyMs:  20,
		MaxDeviceRetries: 3,
		RetryDelay:       0.5,
	}

	issues := cfg.Validate()
	if len(issues) != 2 {
		t.Fatalf("Validate() returned %d issues, want 2: %v", len(issues), issues)
	}
	if !strings.Contains(issues[0], "sample rate") {
		t.Errorf("issues[0] = %q, want sample rate complaint", issues[0])
	}
	if !strings.Contains(issues[1], "channel count") {
		t.Errorf("issues[1] = %q, want channel count complaint", issues[1])
	}
}

func TestConfig_CheckReturnsCodedError(t *testing.T) {
	t.Parallel()

	cfg := &Config{SampleRate: 48000, Channels: 1, PeriodFrames: 128, TargetLatencyMs: 20}
	if err := cfg.check(); err != nil {
		t.Errorf("check() on valid config = %v, want nil", err)
	}

	cfg.TargetLatencyMs = -5
	err := cfg.check()
	if err == nil {
		t.Fatal("check() on invalid config = nil, want error")
	}
	if err.Code != ErrCodeConfigInvalid {
		t.Errorf("check() code = %s, want %s", err.Code, ErrCodeConfigInvalid)
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("LOOPBACK_SAMPLE_RATE", "44100")
	t.Setenv("LOOPBACK_CHANNELS", "2")
	t.Setenv("LOOPBACK_TARGET_LATENCY_MS", "12.5")
	t.Setenv("LOOPBACK_INPUT_DEVICE_ID", "3")
	t.Setenv("LOOPBACK_DEBUG_LEVEL", "DEBUG")

	cfg := NewConfig()

	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.Channels != 2 {
		t.Errorf("Channels = %d, want 2", cfg.Channels)
	}
	if cfg.TargetLatencyMs != 12.5 {
		t.Errorf("TargetLatencyMs = %v, want 12.5", cfg.TargetLatencyMs)
	}
	if cfg.InputDeviceID == nil || *cfg.InputDeviceID != 3 {
		t.Errorf("InputDeviceID = %v, want 3", cfg.InputDeviceID)
	}
	if cfg.DebugLevel != "DEBUG" {
		t.Errorf("DebugLevel = %q, want DEBUG", cfg.DebugLevel)
	}
}

func TestConfig_EnvIgnoresGarbage(t *testing.T) {
	t.Setenv("LOOPBACK_SAMPLE_RATE", "not-a-number")

	cfg := NewConfig()
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want default 48000 when env is unparseable", cfg.SampleRate)
	}
}
