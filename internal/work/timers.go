package work

import "time"

// deadline is a generation-stamped timer. Each arm bumps the generation;
// a fired event whose Seq differs from the current generation is stale.
type deadline struct {
	kind  Kind
	gen   uint64
	at    time.Time
	armed bool
	stop  func() bool
}

// arm cancels any pending timer and schedules a fresh one that posts an
// event of d.kind through post.
func (d *deadline) arm(s Scheduler, now time.Time, after time.Duration, post func(Event)) {
	d.cancel()
	d.gen++
	d.at = now.Add(after)
	d.armed = true

	ev := Event{Kind: d.kind, Seq: d.gen}
	d.stop = s.AfterFunc(after, func() { post(ev) })
}

// cancel disarms the deadline. Events already queued become stale.
func (d *deadline) cancel() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	if d.armed {
		d.gen++
		d.armed = false
	}
}

// fire reports whether ev is the live expiry of this deadline and disarms it.
func (d *deadline) fire(ev Event) bool {
	if !d.armed || ev.Seq != d.gen {
		return false
	}
	d.armed = false
	d.stop = nil
	return true
}

// overdue reports whether the deadline passed more than grace ago without
// its event being processed, which happens when the event queue was full.
func (d *deadline) overdue(now time.Time, grace time.Duration) bool {
	return d.armed && now.After(d.at.Add(grace))
}

// event returns the expiry event for the current generation.
func (d *deadline) event() Event {
	return Event{Kind: d.kind, Seq: d.gen}
}
