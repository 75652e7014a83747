package capture

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
)

// DefaultDevice selects the system default capture device.
const DefaultDevice = "sysdefault"

// MalgoConfig selects a sound card input.
type MalgoConfig struct {
	// Device is a device name substring, decoded device id, or
	// DefaultDevice.
	Device string
	// SampleRate requests a capture rate; 0 keeps the device native rate.
	SampleRate int
	// Debug forwards miniaudio log messages to the capture logger.
	Debug bool
}

// malgoDevice captures the first channel of a sound card as float32.
type malgoDevice struct {
	config MalgoConfig
	ctx    *malgo.AllocatedContext
	info   malgo.DeviceInfo
	id     string

	mu       sync.Mutex
	device   *malgo.Device
	sink     atomic.Pointer[Sink]
	stopping atomic.Bool
	samples  []float32
}

// NewMalgoOpener returns an Opener for the sound card described by config.
// The device context is initialized and the device selected when the opener
// runs, which is where hosts that gate microphone access ask the user.
func NewMalgoOpener(config MalgoConfig) Opener {
	return func(ctx context.Context) (Device, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		malgoCtx, err := initMalgoContext(config.Debug)
		if err != nil {
			return nil, err
		}

		infos, err := malgoCtx.Devices(malgo.Capture)
		if err != nil {
			releaseContext(malgoCtx)
			return nil, errors.New(err).
				Component("capture").
				Category(errors.CategoryDevice).
				Context("operation", "enumerate_devices").
				Build()
		}

		info, id, err := selectCaptureDevice(infos, config.Device)
		if err != nil {
			releaseContext(malgoCtx)
			return nil, err
		}

		return &malgoDevice{config: config, ctx: malgoCtx, info: info, id: id}, nil
	}
}

func initMalgoContext(debug bool) (*malgo.AllocatedContext, error) {
	var onLog malgo.LogProc
	if debug {
		onLog = func(message string) {
			GetLogger().Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
		}
	}
	malgoCtx, err := malgo.InitContext([]malgo.Backend{getBackend()}, malgo.ContextConfig{}, onLog)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryDevice).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}
	return malgoCtx, nil
}

func releaseContext(malgoCtx *malgo.AllocatedContext) {
	_ = malgoCtx.Uninit()
	malgoCtx.Free()
}

// getBackend returns the audio backend for the current platform.
func getBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// selectCaptureDevice picks the first device matching the setting, falling
// back to the host default for DefaultDevice.
func selectCaptureDevice(infos []malgo.DeviceInfo, setting string) (malgo.DeviceInfo, string, error) {
	if setting == "" {
		setting = DefaultDevice
	}

	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			GetLogger().Debug("skipping device with undecodable id",
				logger.Int("index", i),
				logger.Error(err))
			continue
		}
		if matchesDeviceSettings(decodedID, infos[i], setting) {
			return infos[i], decodedID, nil
		}
	}

	if setting == DefaultDevice || setting == "default" {
		for i := range infos {
			if infos[i].IsDefault == 1 {
				id, _ := hexToASCII(infos[i].ID.String())
				return infos[i], id, nil
			}
		}
		if len(infos) > 0 {
			id, _ := hexToASCII(infos[0].ID.String())
			return infos[0], id, nil
		}
	}

	return malgo.DeviceInfo{}, "", errors.New(fmt.Errorf("%w: no capture device matches %q (%d available)", ErrDeviceUnavailable, setting, len(infos))).
		Component("capture").
		Category(errors.CategoryDevice).
		Context("device_setting", setting).
		Context("device_count", len(infos)).
		Build()
}

// matchesDeviceSettings checks if the device matches the configured device.
func matchesDeviceSettings(decodedID string, info malgo.DeviceInfo, setting string) bool {
	if runtime.GOOS == "windows" && setting == DefaultDevice {
		// WASAPI has no sysdefault device, use the miniaudio default instead.
		return info.IsDefault == 1
	}
	return decodedID == setting || strings.Contains(info.Name(), setting)
}

// hexToASCII converts a hexadecimal string to an ASCII string.
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(bytes), "\x00"), nil
}

func (d *malgoDevice) Name() string {
	return d.info.Name()
}

func (d *malgoDevice) Start(ctx context.Context, sink Sink) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return 0, errors.Newf("capture device %s already started", d.Name()).
			Component("capture").
			Category(errors.CategoryState).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = d.info.ID.Pointer()
	deviceConfig.SampleRate = uint32(max(d.config.SampleRate, 0))
	deviceConfig.Alsa.NoMMap = 1

	d.sink.Store(&sink)
	d.stopping.Store(false)

	callbacks := malgo.DeviceCallbacks{
		Data: d.onReceiveFrames,
		Stop: d.onStopDevice,
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		d.sink.Store(nil)
		return 0, errors.New(err).
			Component("capture").
			Context("device", d.Name()).
			Context("device_id", d.id).
			Context("operation", "init_device").
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		d.sink.Store(nil)
		return 0, errors.New(err).
			Component("capture").
			Context("device", d.Name()).
			Context("operation", "start_device").
			Build()
	}
	d.device = device

	return int(device.SampleRate()), nil
}

// onReceiveFrames decodes little-endian float32 frames and hands them to the
// sink. Called on the audio thread.
func (d *malgoDevice) onReceiveFrames(_, pSamples []byte, framecount uint32) {
	sinkPtr := d.sink.Load()
	if sinkPtr == nil {
		return
	}

	n := min(int(framecount), len(pSamples)/bytesPerSample)
	if cap(d.samples) < n {
		d.samples = make([]float32, n)
	}
	samples := d.samples[:n]
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pSamples[i*bytesPerSample:]))
	}
	(*sinkPtr)(samples)
}

// onStopDevice is called when the device stops, either on request or
// unexpectedly. Unexpected stops get one restart attempt.
func (d *malgoDevice) onStopDevice() {
	if d.stopping.Load() {
		return
	}

	GetLogger().Warn("capture device stopped unexpectedly", logger.String("device", d.Name()))

	go func() {
		time.Sleep(100 * time.Millisecond)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.stopping.Load() || d.device == nil {
			return
		}
		if err := d.device.Start(); err != nil {
			_ = errors.New(err).
				Component("capture").
				Category(errors.CategoryDevice).
				Context("device", d.Name()).
				Context("operation", "restart_device").
				Build()
			GetLogger().Error("failed to restart capture device",
				logger.String("device", d.Name()),
				logger.Error(err))
		}
	}()
}

func (d *malgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopping.Store(true)
	if d.device == nil {
		return nil
	}

	err := d.device.Stop()
	d.sink.Store(nil)
	d.device.Uninit()
	d.device = nil

	if err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryDevice).
			Context("device", d.Name()).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

func (d *malgoDevice) Close() error {
	if err := d.Stop(); err != nil {
		GetLogger().Warn("stopping device during close", logger.Error(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		releaseContext(d.ctx)
		d.ctx = nil
	}
	return nil
}

// ListDevices enumerates the host capture devices.
func ListDevices() ([]DeviceInfo, error) {
	malgoCtx, err := initMalgoContext(false)
	if err != nil {
		return nil, err
	}
	defer releaseContext(malgoCtx)

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryDevice).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			GetLogger().Debug("skipping device with undecodable id", logger.Int("index", i), logger.Error(err))
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodedID,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}
