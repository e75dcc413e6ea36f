package task

import "time"

type EventType string

const (
	EventProgress EventType = "progress"
	EventFinished EventType = "finished"
)

// subscriberBuffer bounds how far a subscriber may lag before it is dropped.
const subscriberBuffer = 256

// Event is one entry of a batch's progress stream. The last event of every
// batch has type EventFinished.
type Event struct {
	Seq        int       `json:"seq"`
	Type       EventType `json:"type"`
	Message    string    `json:"message,omitempty"`
	Percent    int       `json:"percent"`
	Success    bool      `json:"success,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
	Time       time.Time `json:"time"`
}

// Listener receives a batch's events synchronously, in order, on the
// goroutine running the batch.
type Listener interface {
	OnProgress(message string, percent int)
	OnFinished(success bool, lastOutputPath string)
}

// progress records a progress event; its signature matches ffmpeg.ProgressFunc.
func (b *Batch) progress(message string, percent int) {
	b.mu.Lock()
	if b.info.Status.IsTerminal() {
		b.mu.Unlock()
		return
	}
	b.info.Message = message
	b.info.Percent = percent
	b.publishLocked(Event{Type: EventProgress, Message: message, Percent: percent})
	listeners := b.listeners
	b.mu.Unlock()

	for _, l := range listeners {
		l.OnProgress(message, percent)
	}
}

// finish moves the batch to its terminal state and emits the finished event.
// Only the first call has any effect.
func (b *Batch) finish(status Status, lastOutput string, err error) bool {
	return b.finishFrom(func(s Status) bool { return !s.IsTerminal() }, status, lastOutput, err)
}

// abortQueued finishes the batch as aborted if it has not started yet.
func (b *Batch) abortQueued() bool {
	return b.finishFrom(func(s Status) bool { return s == StatusIdle }, StatusAborted, "", ErrUserCancelled)
}

func (b *Batch) finishFrom(allowed func(Status) bool, status Status, lastOutput string, err error) bool {
	b.mu.Lock()
	if !allowed(b.info.Status) {
		b.mu.Unlock()
		return false
	}
	success := status == StatusCompleted
	b.info.Status = status
	b.info.Success = success
	b.info.LastOutput = lastOutput
	b.info.CompletedAt = time.Now()
	if err != nil {
		b.info.Error = err.Error()
	}
	b.publishLocked(Event{Type: EventFinished, Success: success, OutputPath: lastOutput, Percent: b.info.Percent})
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	listeners := b.listeners
	b.mu.Unlock()

	for _, l := range listeners {
		l.OnFinished(success, lastOutput)
	}
	close(b.done)
	return true
}

func (b *Batch) publishLocked(ev Event) {
	ev.Seq = len(b.events) + 1
	ev.Time = time.Now()
	b.events = append(b.events, ev)
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Too slow to keep ordering guarantees; drop it.
			close(ch)
			delete(b.subs, id)
		}
	}
}

// Events returns every event recorded so far.
func (b *Batch) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Subscribe returns the events recorded so far and a channel carrying every
// later one. The channel is closed after the finished event, when the
// subscriber falls too far behind, or when unsubscribe is called.
func (b *Batch) Subscribe() (history []Event, ch <-chan Event, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	history = append([]Event(nil), b.events...)
	c := make(chan Event, subscriberBuffer)
	if b.info.Status.IsTerminal() {
		close(c)
		return history, c, func() {}
	}

	id := b.nextSub
	b.nextSub++
	b.subs[id] = c
	return history, c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			close(sub)
			delete(b.subs, id)
		}
	}
}
