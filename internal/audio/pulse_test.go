package audio

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromListDefault(t *testing.T) {
	devices := []Device{
		{Index: 0, ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
		{Index: 1, ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	for _, selector := range []string{"", "default", " Default "} {
		selection, err := selectDeviceFromList(devices, selector)
		require.NoError(t, err)
		require.Equal(t, "elgato", selection.Device.ID)
		require.Empty(t, selection.Warning)
	}
}

func TestSelectDeviceFromListByIndexAndName(t *testing.T) {
	devices := []Device{
		{Index: 0, ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
		{Index: 1, ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "1")
	require.NoError(t, err)
	require.Equal(t, "sony", selection.Device.ID)

	selection, err = selectDeviceFromList(devices, "WH-1000")
	require.NoError(t, err)
	require.Equal(t, "sony", selection.Device.ID)
}

func TestSelectDeviceFromListMutedChoiceFallsBackToDefault(t *testing.T) {
	devices := []Device{
		{Index: 0, ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
		{Index: 1, ID: "sony", Description: "Sony WH-1000XM6", Available: true, Muted: true},
	}

	selection, err := selectDeviceFromList(devices, "sony")
	require.NoError(t, err)
	require.Equal(t, "elgato", selection.Device.ID)
	require.Contains(t, selection.Warning, "muted")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFromListFailsWhenDefaultMuted(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "muted")

	_, err = selectDeviceFromList(nil, "default")
	require.Error(t, err)
}

func TestSelectDeviceFromListUnknownInput(t *testing.T) {
	devices := []Device{{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true}}

	_, err := selectDeviceFromList(devices, "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not match")

	_, err = selectDeviceFromList(devices, "7")
	require.Error(t, err)
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "elgato"))
	require.True(t, deviceMatches(dev, "wave 3"))
	require.False(t, deviceMatches(dev, "missing"))
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.Error(t, err)
}

func TestSelectDeviceFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := SelectDevice(context.Background(), "default")
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(99)", sourceStateString(99))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{})) // no ports => available

	available := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, available, []sourcePort{{name: "mic", available: 2}})
	require.True(t, sourceAvailable(available))

	notAvailable := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, notAvailable, []sourcePort{{name: "mic", available: 1}})
	require.False(t, sourceAvailable(notAvailable))
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	called := false
	writer := writerFunc(func(b []byte) (int, error) {
		called = true
		require.Equal(t, []byte{1, 2, 3}, b)
		return len(b), nil
	})

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, called)
}

func TestFormatDefaults(t *testing.T) {
	require.Equal(t, DefaultBlocksize*2, Format{}.ChunkBytes())
	require.Equal(t, 320, Format{SampleRate: 16000, Blocksize: 160}.ChunkBytes())
}

func TestCaptureOnPCMChunkingAndStopFlushesPending(t *testing.T) {
	capture := newCapture(Device{}, 640)

	input := make([]byte, 640+111)
	for i := range input {
		input[i] = byte(i % 255)
	}

	n, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(len(input)), capture.BytesCaptured())

	firstChunk := <-capture.Chunks()
	require.Len(t, firstChunk, 640)
	require.Equal(t, input[:640], firstChunk)

	require.NoError(t, capture.Stop())
	require.NoError(t, capture.Err())

	remaining, ok := <-capture.Chunks()
	require.True(t, ok)
	require.Len(t, remaining, 111)

	_, ok = <-capture.Chunks()
	require.False(t, ok)
}

func TestCaptureOnPCMReturnsEOFWhenStopped(t *testing.T) {
	capture := newCapture(Device{}, 640)
	close(capture.stopCh)

	n, err := capture.onPCM([]byte{1, 2, 3})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(0), capture.BytesCaptured())
}

func TestCaptureDeviceAndCloseAlias(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1", Description: "Mic"}, 640)
	require.Equal(t, "mic-1", capture.Device().ID)

	capture.Close()
	_, ok := <-capture.Chunks()
	require.False(t, ok)
	capture.Close()
}

func TestCaptureWatchReportsStall(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"}, 640)
	capture.lastPCM.Store(time.Now().Add(-time.Hour).UnixNano())

	go capture.watch(context.Background(), 20*time.Millisecond)

	_, ok := <-capture.Chunks()
	require.False(t, ok)
	require.ErrorIs(t, capture.Err(), ErrStalled)
}

func TestCaptureWatchStopsOnContext(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"}, 640)
	capture.lastPCM.Store(time.Now().UnixNano())

	ctx, cancel := context.WithCancel(context.Background())
	go capture.watch(ctx, time.Hour)
	cancel()

	_, ok := <-capture.Chunks()
	require.False(t, ok)
	require.NoError(t, capture.Err())
}

type sourcePort struct {
	name      string
	available uint32
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceType := reflect.TypeOf(reply.Ports)
	sliceValue := reflect.MakeSlice(sliceType, len(ports), len(ports))

	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}

	replyValue := reflect.ValueOf(reply).Elem().FieldByName("Ports")
	replyValue.Set(sliceValue)
}
