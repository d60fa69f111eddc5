package audio

import (
	"context"
	"encoding/binary"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// CaptureDevice records from a local input device through miniaudio. Each
// Open initialises its own miniaudio context and device.
type CaptureDevice struct {
	// Format requested from the hardware. Zero means [Mono16k].
	Format Format

	// DeviceName selects an input device whose name contains this string.
	// Empty uses the system default.
	DeviceName string

	// Queue is the number of hardware periods buffered between the audio
	// callback and Read. When full, new periods are dropped and counted.
	// Zero means 64.
	Queue int
}

var _ Device = (*CaptureDevice)(nil)

// Open implements [Device]. Any failure to initialise or start the hardware
// is reported as [ErrDeviceUnavailable].
func (d *CaptureDevice) Open(_ context.Context) (Stream, error) {
	format := d.Format
	if !format.Valid() {
		format = Mono16k
	}
	queue := d.Queue
	if queue <= 0 {
		queue = 64
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, unavailable("init audio context", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.Alsa.NoMMap = 1

	if d.DeviceName != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return nil, unavailable("list capture devices", err)
		}
		found := false
		for _, info := range infos {
			if strings.Contains(info.Name(), d.DeviceName) {
				cfg.Capture.DeviceID = info.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			_ = mctx.Uninit()
			mctx.Free()
			return nil, unavailable("no capture device matching "+d.DeviceName, nil)
		}
	}

	s := &captureStream{
		format: format,
		ch:     make(chan []int16, queue),
		closed: make(chan struct{}),
		mctx:   mctx,
	}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if len(in) < 2 {
				return
			}
			pcm := make([]int16, len(in)/2)
			for i := range pcm {
				pcm[i] = int16(binary.LittleEndian.Uint16(in[i*2:]))
			}
			select {
			case s.ch <- pcm:
			default:
				s.dropped.Add(1)
			}
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, unavailable("init capture device", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, unavailable("start capture device", err)
	}
	s.dev = dev
	slog.Info("audio capture started", "format", format.String(), "device", d.DeviceName)
	return s, nil
}

type captureStream struct {
	format  Format
	ch      chan []int16
	closed  chan struct{}
	once    sync.Once
	dropped atomic.Int64

	mctx *malgo.AllocatedContext
	dev  *malgo.Device
}

func (s *captureStream) Format() Format { return s.format }

// Dropped returns the number of hardware periods lost to a full queue.
func (s *captureStream) Dropped() int64 { return s.dropped.Load() }

func (s *captureStream) Read(ctx context.Context) ([]int16, error) {
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}
	select {
	case pcm := <-s.ch:
		return pcm, nil
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *captureStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		_ = s.dev.Stop()
		s.dev.Uninit()
		_ = s.mctx.Uninit()
		s.mctx.Free()
		if n := s.dropped.Load(); n > 0 {
			slog.Warn("audio capture dropped periods", "count", n)
		}
	})
	return nil
}
