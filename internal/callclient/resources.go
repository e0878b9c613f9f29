package callclient

import "github.com/google/uuid"

// callResources owns everything a call holds on the client. release is the
// single teardown for every exit path and is safe to call repeatedly.
type callResources struct {
	local       Stream
	localSink   VideoSink
	remote      map[uuid.UUID]Stream
	remoteSinks map[uuid.UUID]VideoSink
	timers      []Timer
}

func newCallResources() *callResources {
	return &callResources{
		remote:      make(map[uuid.UUID]Stream),
		remoteSinks: make(map[uuid.UUID]VideoSink),
	}
}

// setLocal swaps the local stream, stopping the one it replaces
func (r *callResources) setLocal(stream Stream) {
	if r.local != nil && r.local != stream {
		stopStream(r.local)
	}
	r.local = stream
	if r.localSink != nil {
		if stream != nil {
			r.localSink.Attach(stream)
		} else {
			r.localSink.Detach()
		}
	}
}

func (r *callResources) bindLocalSink(sink VideoSink) {
	if r.localSink != nil && r.localSink != sink {
		r.localSink.Detach()
	}
	r.localSink = sink
	if sink != nil && r.local != nil {
		sink.Attach(r.local)
	}
}

func (r *callResources) addRemote(userID uuid.UUID, stream Stream) {
	r.remote[userID] = stream
	if sink := r.remoteSinks[userID]; sink != nil {
		sink.Attach(stream)
	}
}

func (r *callResources) removeRemote(userID uuid.UUID) {
	delete(r.remote, userID)
	if sink := r.remoteSinks[userID]; sink != nil {
		sink.Detach()
	}
}

func (r *callResources) bindRemoteSink(userID uuid.UUID, sink VideoSink) {
	if old := r.remoteSinks[userID]; old != nil && old != sink {
		old.Detach()
	}
	if sink == nil {
		delete(r.remoteSinks, userID)
		return
	}
	r.remoteSinks[userID] = sink
	if stream := r.remote[userID]; stream != nil {
		sink.Attach(stream)
	}
}

func (r *callResources) addTimer(t Timer) {
	r.timers = append(r.timers, t)
}

// release stops local tracks, detaches every sink, clears remote streams and
// cancels pending timers. The local sink binding survives for the next call.
func (r *callResources) release() {
	stopStream(r.local)
	r.local = nil
	if r.localSink != nil {
		r.localSink.Detach()
	}
	for userID, sink := range r.remoteSinks {
		sink.Detach()
		delete(r.remoteSinks, userID)
	}
	for userID := range r.remote {
		delete(r.remote, userID)
	}
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}
