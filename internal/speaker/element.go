package speaker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/mp3"
	beepspeaker "github.com/gopxl/beep/speaker"
)

const defaultSampleRate = beep.SampleRate(44100)

var errNotLoaded = errors.New("no audio loaded")

// Element plays MP3 segments on the default output device. Only one segment
// is ever queued on the device; Load clears the previous one first.
type Element struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	stream     beep.StreamSeekCloser
	format     beep.Format
	ctrl       *beep.Ctrl
	volume     *effects.Volume
	percent    int
	ended      chan struct{}
}

// New initializes the output device. sampleRate 0 selects 44.1kHz, which
// matches the default synthesis output format.
func New(sampleRate int) (*Element, error) {
	sr := defaultSampleRate
	if sampleRate > 0 {
		sr = beep.SampleRate(sampleRate)
	}
	if err := beepspeaker.Init(sr, sr.N(100*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return &Element{
		sampleRate: sr,
		percent:    100,
		ended:      make(chan struct{}, 1),
	}, nil
}

// Ended delivers a value each time a loaded segment plays to its end.
func (e *Element) Ended() <-chan struct{} {
	return e.ended
}

func (e *Element) Load(audio []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	beepspeaker.Clear()
	e.closeStream()

	stream, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(audio)))
	if err != nil {
		return fmt.Errorf("decode mp3: %w", err)
	}

	var source beep.Streamer = stream
	if format.SampleRate != e.sampleRate {
		source = beep.Resample(4, format.SampleRate, e.sampleRate, stream)
	}
	ctrl := &beep.Ctrl{
		Streamer: beep.Seq(source, beep.Callback(e.notifyEnded)),
		Paused:   true,
	}
	volume := &effects.Volume{Streamer: ctrl, Base: 2}
	volume.Volume, volume.Silent = gain(e.percent)

	e.stream, e.format, e.ctrl, e.volume = stream, format, ctrl, volume
	beepspeaker.Play(volume)
	return nil
}

func (e *Element) Play() error  { return e.setPaused(false) }
func (e *Element) Pause() error { return e.setPaused(true) }

func (e *Element) setPaused(paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return errNotLoaded
	}
	beepspeaker.Lock()
	e.ctrl.Paused = paused
	beepspeaker.Unlock()
	return nil
}

func (e *Element) Seek(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return errNotLoaded
	}
	n := e.format.SampleRate.N(pos)
	if last := e.stream.Len() - 1; n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}
	beepspeaker.Lock()
	defer beepspeaker.Unlock()
	return e.stream.Seek(n)
}

func (e *Element) SetVolume(percent int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.percent = percent
	if e.volume == nil {
		return nil
	}
	beepspeaker.Lock()
	e.volume.Volume, e.volume.Silent = gain(percent)
	beepspeaker.Unlock()
	return nil
}

func (e *Element) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return 0
	}
	return e.format.SampleRate.D(e.stream.Len())
}

func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return 0
	}
	beepspeaker.Lock()
	defer beepspeaker.Unlock()
	return e.format.SampleRate.D(e.stream.Position())
}

// Close stops playback and releases the loaded stream.
func (e *Element) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	beepspeaker.Clear()
	return e.closeStream()
}

func (e *Element) closeStream() error {
	if e.stream == nil {
		return nil
	}
	err := e.stream.Close()
	e.stream, e.ctrl, e.volume = nil, nil, nil
	return err
}

// notifyEnded runs on the speaker goroutine and must not block.
func (e *Element) notifyEnded() {
	select {
	case e.ended <- struct{}{}:
	default:
	}
}

// gain converts a linear 0-100 volume into beep's base-2 exponent.
func gain(percent int) (float64, bool) {
	if percent <= 0 {
		return 0, true
	}
	if percent >= 100 {
		return 0, false
	}
	return math.Log2(float64(percent) / 100), false
}
