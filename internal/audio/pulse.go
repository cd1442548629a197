// Package audio handles device discovery, selection, and PCM capture streams.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	appName = "blockdelete"

	// DefaultSampleRate matches the recognizer's default model rate.
	DefaultSampleRate = 48000
	// DefaultBlocksize is samples per chunk (200ms at 48kHz).
	DefaultBlocksize = 9600

	bytesPerSample = 2
	chunkBuffer    = 128
	stallTimeout   = 5 * time.Second
)

// ErrStalled reports a record stream that stopped delivering audio.
var ErrStalled = errors.New("audio source stopped delivering samples")

// Device describes one Pulse input source.
type Device struct {
	Index       int
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// Format is the capture layout: mono s16le at SampleRate, Blocksize samples per chunk.
type Format struct {
	SampleRate int
	Blocksize  int
}

func (f Format) withDefaults() Format {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultSampleRate
	}
	if f.Blocksize <= 0 {
		f.Blocksize = DefaultBlocksize
	}
	return f
}

// ChunkBytes is the size of one emitted chunk.
func (f Format) ChunkBytes() int {
	return f.withDefaults().Blocksize * bytesPerSample
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			Index:       len(devices),
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves microphone.device against live devices.
func SelectDevice(ctx context.Context, device string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, device)
}

// selectDeviceFromList picks the device named by selector: empty or "default" for the
// server default, a list index, or a substring of id or description. A muted or
// unavailable choice falls back to the default source with a warning.
func selectDeviceFromList(devices []Device, selector string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	var defaultDevice, chosen *Device
	selector = strings.TrimSpace(strings.ToLower(selector))
	index, indexErr := strconv.Atoi(selector)

	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if chosen != nil || selector == "" || selector == "default" {
			continue
		}
		if indexErr == nil && dev.Index == index {
			chosen = dev
		} else if indexErr != nil && deviceMatches(*dev, selector) {
			chosen = dev
		}
	}

	if selector == "" || selector == "default" {
		if defaultDevice == nil {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		chosen = defaultDevice
	}
	if chosen == nil {
		return Selection{}, fmt.Errorf("microphone.device %q did not match any device", selector)
	}
	if chosen.Available && !chosen.Muted {
		return Selection{Device: *chosen}, nil
	}

	reason := "unavailable"
	if chosen.Muted {
		reason = "muted"
	}
	if defaultDevice == nil || defaultDevice == chosen {
		return Selection{}, fmt.Errorf("audio input %q is %s and no usable fallback", chosen.ID, reason)
	}
	if !defaultDevice.Available || defaultDevice.Muted {
		return Selection{}, fmt.Errorf("audio input %q is %s and default %q is not usable", chosen.ID, reason, defaultDevice.ID)
	}
	return Selection{
		Device:   *defaultDevice,
		Warning:  fmt.Sprintf("audio input %q is %s; falling back to %q", chosen.ID, reason, defaultDevice.ID),
		Fallback: true,
	}, nil
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// Capture streams fixed-size PCM chunks from one selected Pulse source.
type Capture struct {
	device     Device
	chunkBytes int

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool
	err     error

	inflight sync.WaitGroup
	bytes    atomic.Int64
	lastPCM  atomic.Int64
}

// StartCapture creates and starts a mono s16 record stream in the given format.
func StartCapture(ctx context.Context, selected Device, format Format) (*Capture, error) {
	format = format.withDefaults()
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, format.ChunkBytes())
	capture.client = client

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(format.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(capture.chunkBytes)),
		pulse.RecordMediaName(appName+" voice commands"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	capture.lastPCM.Store(time.Now().UnixNano())
	stream.Start()

	go capture.watch(ctx, stallTimeout)
	return capture, nil
}

func newCapture(device Device, chunkBytes int) *Capture {
	return &Capture{
		device:     device,
		chunkBytes: chunkBytes,
		chunks:     make(chan []byte, chunkBuffer),
		stopCh:     make(chan struct{}),
	}
}

// watch stops the capture when ctx ends, or with ErrStalled when samples stop arriving.
func (c *Capture) watch(ctx context.Context, stall time.Duration) {
	ticker := time.NewTicker(stall / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.Stop()
			return
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			last := time.Unix(0, c.lastPCM.Load())
			if now.Sub(last) > stall {
				c.fail(fmt.Errorf("%w for %s", ErrStalled, stall))
				return
			}
		}
	}
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks returns the PCM stream as fixed-size byte slices.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Err returns the failure that stopped the capture, or nil after a clean Stop.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Capture) fail(err error) {
	c.mu.Lock()
	if c.err == nil && !c.stopped {
		c.err = err
	}
	c.mu.Unlock()
	_ = c.Stop()
}

// Stop halts the stream, flushes residual PCM, and closes Chunks exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	pending := append([]byte(nil), c.pending...)
	c.pending = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		select {
		case c.chunks <- pending:
		default:
		}
	}

	close(c.chunks)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM receives raw Pulse frames and emits chunkBytes slices to c.chunks.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as c.stopped so Stop's Wait never races it.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)
	chunks := make([][]byte, 0, len(c.pending)/c.chunkBytes)
	for len(c.pending) >= c.chunkBytes {
		chunk := make([]byte, c.chunkBytes)
		copy(chunk, c.pending[:c.chunkBytes])
		c.pending = c.pending[c.chunkBytes:]
		chunks = append(chunks, chunk)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))
	c.lastPCM.Store(time.Now().UnixNano())

	for _, chunk := range chunks {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
