package playback

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/loqalabs/synapse-audio/internal/overview"
)

// State is the controller's position in the playback lifecycle.
type State int

const (
	Idle State = iota
	Ready
	Playing
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is an input to the state machine, either from the user or from the
// audio element.
type Event int

const (
	EventLoad Event = iota
	EventRefresh
	EventPlay
	EventPause
	EventNext
	EventPrevious
	EventAudioEnded
	EventTimeUpdate
	EventScrub
	EventSetVolume
)

// Element is the audio output the controller drives. Load replaces whatever
// source was loaded before and leaves the element paused at the start.
type Element interface {
	Load(audio []byte) error
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	SetVolume(percent int) error
	Duration() time.Duration
	Position() time.Duration
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	State           State
	Playlist        int
	CurrentIndex    int
	IsPlaying       bool
	ProgressPercent float64
	VolumePercent   int
	Current         *overview.Segment
}

type input struct {
	segments []overview.Segment
	percent  float64
	volume   int
}

type transition func(c *Controller, in input) (State, error)

// transitions is the complete table. Events missing for a state are ignored.
var transitions = map[State]map[Event]transition{
	Idle: {
		EventLoad:      (*Controller).load,
		EventRefresh:   (*Controller).load,
		EventSetVolume: (*Controller).setVolume,
	},
	Ready: {
		EventLoad:       (*Controller).load,
		EventRefresh:    (*Controller).refresh,
		EventPlay:       (*Controller).play,
		EventNext:       (*Controller).next,
		EventPrevious:   (*Controller).previous,
		EventTimeUpdate: (*Controller).timeUpdate,
		EventScrub:      (*Controller).scrub,
		EventSetVolume:  (*Controller).setVolume,
	},
	Playing: {
		EventLoad:       (*Controller).load,
		EventRefresh:    (*Controller).refresh,
		EventPause:      (*Controller).pause,
		EventNext:       (*Controller).next,
		EventPrevious:   (*Controller).previous,
		EventAudioEnded: (*Controller).advance,
		EventTimeUpdate: (*Controller).timeUpdate,
		EventScrub:      (*Controller).scrub,
		EventSetVolume:  (*Controller).setVolume,
	},
	Ended: {
		EventLoad:      (*Controller).load,
		EventRefresh:   (*Controller).refresh,
		EventPlay:      (*Controller).replay,
		EventNext:      (*Controller).next,
		EventPrevious:  (*Controller).previous,
		EventSetVolume: (*Controller).setVolume,
	},
}

// Controller plays the successful segments of an overview one at a time.
type Controller struct {
	mu        sync.Mutex
	element   Element
	state     State
	playlist  []overview.Segment
	positions []int
	current   int
	loaded    bool
	progress  float64
	volume    int
}

func NewController(element Element) *Controller {
	return &Controller{element: element, current: -1, volume: 100}
}

// Load replaces the playlist with the playable segments of segments.
func (c *Controller) Load(segments []overview.Segment) (Snapshot, error) {
	return c.fire(EventLoad, input{segments: segments})
}

// Refresh rebuilds the playlist after a retried segment was spliced in,
// keeping the loaded segment and its position.
func (c *Controller) Refresh(segments []overview.Segment) (Snapshot, error) {
	return c.fire(EventRefresh, input{segments: segments})
}

func (c *Controller) Play() (Snapshot, error)     { return c.fire(EventPlay, input{}) }
func (c *Controller) Pause() (Snapshot, error)    { return c.fire(EventPause, input{}) }
func (c *Controller) Next() (Snapshot, error)     { return c.fire(EventNext, input{}) }
func (c *Controller) Previous() (Snapshot, error) { return c.fire(EventPrevious, input{}) }

// AudioEnded reports that the loaded segment finished naturally.
func (c *Controller) AudioEnded() (Snapshot, error) { return c.fire(EventAudioEnded, input{}) }

// TimeUpdate samples the element position into the progress percentage.
func (c *Controller) TimeUpdate() (Snapshot, error) { return c.fire(EventTimeUpdate, input{}) }

// Scrub seeks to percent of the current segment's duration.
func (c *Controller) Scrub(percent float64) (Snapshot, error) {
	return c.fire(EventScrub, input{percent: percent})
}

func (c *Controller) SetVolume(percent int) (Snapshot, error) {
	return c.fire(EventSetVolume, input{volume: percent})
}

// TogglePlay pauses while playing and plays otherwise.
func (c *Controller) TogglePlay() (Snapshot, error) {
	c.mu.Lock()
	playing := c.state == Playing
	c.mu.Unlock()
	if playing {
		return c.Pause()
	}
	return c.Play()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// OverviewIndex maps the current playlist entry back to its index in the
// overview the playlist was built from, or -1 when nothing is loaded.
func (c *Controller) OverviewIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current < 0 {
		return -1
	}
	return c.positions[c.current]
}

func (c *Controller) fire(evt Event, in input) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn, ok := transitions[c.state][evt]
	if !ok {
		return c.snapshot(), nil
	}
	// Transitions return the state that matches what the element is doing,
	// including on error.
	next, err := fn(c, in)
	c.state = next
	return c.snapshot(), err
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		State:           c.state,
		Playlist:        len(c.playlist),
		CurrentIndex:    c.current,
		IsPlaying:       c.state == Playing,
		ProgressPercent: c.progress,
		VolumePercent:   c.volume,
	}
	if c.current >= 0 {
		seg := c.playlist[c.current]
		snap.Current = &seg
	}
	return snap
}

func playable(segments []overview.Segment) ([]overview.Segment, []int) {
	var list []overview.Segment
	var positions []int
	for i, seg := range segments {
		if seg.Playable() {
			list = append(list, seg)
			positions = append(positions, i)
		}
	}
	return list, positions
}

func (c *Controller) load(in input) (State, error) {
	if c.state == Playing {
		if err := c.element.Pause(); err != nil {
			return c.state, err
		}
	}
	c.playlist, c.positions = playable(in.segments)
	c.current = -1
	c.progress = 0
	if len(c.playlist) == 0 {
		return Idle, nil
	}
	if err := c.loadIndex(0); err != nil {
		c.reset()
		return Idle, err
	}
	return Ready, nil
}

func (c *Controller) reset() {
	c.playlist, c.positions = nil, nil
	c.current = -1
	c.progress = 0
	c.loaded = false
}

func (c *Controller) refresh(in input) (State, error) {
	if c.current < 0 {
		return c.load(in)
	}
	loaded := c.positions[c.current]
	list, positions := playable(in.segments)
	for i, pos := range positions {
		if pos == loaded {
			c.playlist, c.positions, c.current = list, positions, i
			return c.state, nil
		}
	}
	// The loaded segment is gone; start over.
	return c.load(in)
}

// loadIndex fully replaces the element's source before anything can play.
// A failed load leaves the element without a source, so the controller
// keeps its index but must reload before the next play.
func (c *Controller) loadIndex(i int) error {
	c.loaded = false
	if err := c.element.Load(c.playlist[i].Audio); err != nil {
		return fmt.Errorf("load segment %d: %w", i, err)
	}
	c.current = i
	c.progress = 0
	c.loaded = true
	return c.element.SetVolume(c.volume)
}

func (c *Controller) play(input) (State, error) {
	if !c.loaded {
		if err := c.loadIndex(c.current); err != nil {
			return Ready, err
		}
	}
	if err := c.element.Play(); err != nil {
		return c.state, err
	}
	return Playing, nil
}

func (c *Controller) replay(input) (State, error) {
	if err := c.loadIndex(c.current); err != nil {
		return Ended, err
	}
	if err := c.element.Play(); err != nil {
		return Ready, err
	}
	return Playing, nil
}

func (c *Controller) pause(input) (State, error) {
	if err := c.element.Pause(); err != nil {
		return c.state, err
	}
	return Ready, nil
}

func (c *Controller) next(input) (State, error) {
	if c.current >= len(c.playlist)-1 {
		return c.state, nil
	}
	return c.jump(c.current + 1)
}

func (c *Controller) previous(input) (State, error) {
	if c.current <= 0 {
		return c.state, nil
	}
	return c.jump(c.current - 1)
}

func (c *Controller) jump(i int) (State, error) {
	if c.state == Playing {
		if err := c.element.Pause(); err != nil {
			return c.state, err
		}
	}
	if err := c.loadIndex(i); err != nil {
		return Ready, err
	}
	return Ready, nil
}

func (c *Controller) advance(input) (State, error) {
	if c.current >= len(c.playlist)-1 {
		c.progress = 0
		return Ended, nil
	}
	if err := c.loadIndex(c.current + 1); err != nil {
		return Ready, err
	}
	if err := c.element.Play(); err != nil {
		return Ready, err
	}
	return Playing, nil
}

func (c *Controller) timeUpdate(input) (State, error) {
	dur := c.element.Duration()
	if dur > 0 {
		c.progress = clamp(float64(c.element.Position())/float64(dur)*100, 0, 100)
	}
	return c.state, nil
}

func (c *Controller) scrub(in input) (State, error) {
	pct := clamp(in.percent, 0, 100)
	if dur := c.element.Duration(); dur > 0 {
		if err := c.element.Seek(time.Duration(float64(dur) * pct / 100)); err != nil {
			return c.state, err
		}
	}
	c.progress = pct
	return c.state, nil
}

func (c *Controller) setVolume(in input) (State, error) {
	c.volume = int(clamp(float64(in.volume), 0, 100))
	if c.current >= 0 {
		if err := c.element.SetVolume(c.volume); err != nil {
			return c.state, err
		}
	}
	return c.state, nil
}

// clamp treats NaN as lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
