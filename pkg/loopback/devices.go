package loopback

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Device describes an audio device as seen by PortAudio.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
	HostAPI           string
}

// IsInput reports whether the device can capture.
func (d Device) IsInput() bool { return d.MaxInputChannels > 0 }

// IsOutput reports whether the device can render.
func (d Device) IsOutput() bool { return d.MaxOutputChannels > 0 }

// ListDevices enumerates all audio devices. It initializes and terminates
// PortAudio around the scan, so it must not be called while a session is
// live on a port that owns the library lifetime.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, NewDeviceOpenError(err)
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			GetGlobalLogger().WithComponent("devices").WithError(err).Warn("PortAudio terminate failed")
		}
	}()

	defaultInput, _ := portaudio.DefaultInputDevice()
	defaultOutput, _ := portaudio.DefaultOutputDevice()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, NewDeviceOpenError(err)
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		hostAPI := "Unknown"
		if info.HostApi != nil {
			hostAPI = info.HostApi.Name
		}
		devices = append(devices, Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    defaultInput != nil && info == defaultInput,
			IsDefaultOutput:   defaultOutput != nil && info == defaultOutput,
			HostAPI:           hostAPI,
		})
	}
	return devices, nil
}

// ValidateDevice checks that the identified device can serve the given
// direction and channel count, and warns when the requested sample rate
// is far from the device default.
func ValidateDevice(devices []Device, id int, isInput bool, channels int, sampleRate int) error {
	var dev *Device
	for i := range devices {
		if devices[i].ID == id {
			dev = &devices[i]
			break
		}
	}
	if dev == nil {
		return fmt.Errorf("device with ID %d not found", id)
	}

	if isInput {
		if !dev.IsInput() {
			return fmt.Errorf("device '%s' is not an input device", dev.Name)
		}
		if dev.MaxInputChannels < channels {
			return fmt.Errorf("device '%s' supports max %d input channels, requested %d",
				dev.Name, dev.MaxInputChannels, channels)
		}
	} else {
		if !dev.IsOutput() {
			return fmt.Errorf("device '%s' is not an output device", dev.Name)
		}
		if dev.MaxOutputChannels < channels {
			return fmt.Errorf("device '%s' supports max %d output channels, requested %d",
				dev.Name, dev.MaxOutputChannels, channels)
		}
	}

	if sampleRate > 0 && dev.DefaultSampleRate > 0 {
		ratio := float64(sampleRate) / dev.DefaultSampleRate
		if ratio < 0.5 || ratio > 2.0 {
			GetGlobalLogger().WithComponent("devices").
				WithField("device", dev.Name).
				WithField("device_rate", dev.DefaultSampleRate).
				WithField("requested_rate", sampleRate).
				Warn("Sample rate significantly different from device default")
		}
	}
	return nil
}
