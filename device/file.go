package device

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/audio"
)

// File is a Device backed by raw 16-bit little-endian PCM streams. The
// capture side reads from an io.Reader paced at the configured rate; the
// playback side writes to an io.Writer. It stands in for real hardware in
// the CLI and in soak tests.
type File struct {
	name      string
	rate      int
	blockSize int
	in        io.Reader
	out       io.Writer
	mu        sync.Mutex
	open      bool
	mode      Mode
	sink      audio.Sink
}

// NewFile creates a file-backed device. Either stream may be nil when the
// matching direction is unused.
//
// Parameters:
//   - name: diagnostic label
//   - rate: sample rate of the raw PCM streams in Hz
//   - blockSize: samples per capture block
//   - in: capture source (raw PCM16 LE), may be nil
//   - out: playback destination (raw PCM16 LE), may be nil
func NewFile(name string, rate, blockSize int, in io.Reader, out io.Writer) *File {
	logrus.WithFields(logrus.Fields{
		"function":   "NewFile",
		"device":     name,
		"rate":       rate,
		"block_size": blockSize,
	}).Info("Creating file-backed audio device")

	return &File{name: name, rate: rate, blockSize: blockSize, in: in, out: out}
}

// Open marks the device open for the given direction.
func (f *File) Open(mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	f.mode = mode

	logrus.WithFields(logrus.Fields{
		"function": "File.Open",
		"device":   f.name,
		"mode":     mode.String(),
	}).Debug("File device opened")
	return nil
}

// Close marks the device closed.
func (f *File) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
}

// IsOpen reports whether the device is open.
func (f *File) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// SampleRate returns the configured PCM stream rate.
func (f *File) SampleRate() int {
	return f.rate
}

// RegisterSink connects the capture sink.
func (f *File) RegisterSink(sink audio.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

// Run paces capture blocks from the input stream into the registered sink
// until the context ends or the stream is exhausted. Blocks read while the
// device is closed are discarded, mirroring hardware that keeps sampling
// whether or not anyone listens.
func (f *File) Run(ctx context.Context) error {
	if f.in == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	interval := time.Duration(f.blockSize) * time.Second / time.Duration(f.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	raw := make([]byte, f.blockSize*2)
	block := make([]float32, f.blockSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := io.ReadFull(f.in, raw)
		if n == 0 {
			if err == io.EOF {
				f.mu.Lock()
				sink := f.sink
				open := f.open && f.mode == ModeRead
				f.mu.Unlock()
				if open && sink != nil {
					sink.FlushSamples()
				}
				logrus.WithFields(logrus.Fields{
					"function": "File.Run",
					"device":   f.name,
				}).Info("Capture stream exhausted")
				return nil
			}
			return err
		}

		samples := block[:n/2]
		for i := range samples {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			samples[i] = float32(v) / 32768.0
		}

		f.mu.Lock()
		sink := f.sink
		open := f.open && f.mode == ModeRead
		f.mu.Unlock()

		if open && sink != nil {
			if _, werr := sink.WriteSamples(samples); werr != nil {
				logrus.WithFields(logrus.Fields{
					"function": "File.Run",
					"device":   f.name,
					"error":    werr.Error(),
				}).Error("Capture sink write failed")
			}
		}
	}
}

// WriteSamples plays a block to the output stream. While closed, or with
// no output configured, the block is accepted and dropped.
func (f *File) WriteSamples(samples []float32) (int, error) {
	f.mu.Lock()
	open := f.open && f.mode == ModeWrite
	out := f.out
	f.mu.Unlock()

	if !open || out == nil {
		return len(samples), nil
	}

	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(s*32767.0)))
	}

	if _, err := out.Write(raw); err != nil {
		return 0, err
	}
	return len(samples), nil
}

// FlushSamples is a no-op for file output.
func (f *File) FlushSamples() {}
