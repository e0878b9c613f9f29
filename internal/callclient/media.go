package callclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// TrackKind is the media kind of a track
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Constraints selects the devices a stream is acquired from
type Constraints struct {
	Audio bool
	Video bool
}

// Track is one local or remote media track
type Track interface {
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Stopped() bool
}

// Stream is a set of tracks acquired together
type Stream interface {
	ID() string
	Tracks() []Track
}

// MediaProvider acquires local media. Acquire may block while the user is
// asked for device permission.
type MediaProvider interface {
	Acquire(ctx context.Context, constraints Constraints) (Stream, error)
}

// VideoSink renders a stream. The orchestrator only attaches and detaches;
// the sink's lifecycle belongs to the caller.
type VideoSink interface {
	Attach(stream Stream)
	Detach()
}

// tracksOf returns the stream's tracks of one kind
func tracksOf(stream Stream, kind TrackKind) []Track {
	if stream == nil {
		return nil
	}
	var out []Track
	for _, t := range stream.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func setKindEnabled(stream Stream, kind TrackKind, enabled bool) {
	for _, t := range tracksOf(stream, kind) {
		t.SetEnabled(enabled)
	}
}

func stopStream(stream Stream) {
	if stream == nil {
		return
	}
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}

// NullMediaProvider hands out streams of placeholder tracks. It lets a
// signaling-only client (no capture devices) drive the full state machine.
type NullMediaProvider struct{}

// Acquire returns a stream with one placeholder track per requested kind
func (NullMediaProvider) Acquire(ctx context.Context, constraints Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &nullStream{id: uuid.NewString()}
	if constraints.Audio {
		s.tracks = append(s.tracks, &nullTrack{kind: TrackAudio, enabled: true})
	}
	if constraints.Video {
		s.tracks = append(s.tracks, &nullTrack{kind: TrackVideo, enabled: true})
	}
	return s, nil
}

type nullStream struct {
	id     string
	tracks []Track
}

func (s *nullStream) ID() string      { return s.id }
func (s *nullStream) Tracks() []Track { return s.tracks }

type nullTrack struct {
	mu      sync.Mutex
	kind    TrackKind
	enabled bool
	stopped bool
}

func (t *nullTrack) Kind() TrackKind { return t.kind }

func (t *nullTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *nullTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *nullTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.enabled = false
}

func (t *nullTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
