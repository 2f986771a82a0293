package timeline

import (
	"sync"

	"psorcast/internal/study"
)

// EventKind names a timeline notification.
type EventKind string

const (
	EventVideoCreated        EventKind = "video_created"
	EventVideoProgress       EventKind = "video_progress"
	EventExportStatusChanged EventKind = "export_status_changed"
	EventImageFrameAdded     EventKind = "image_frame_added"
)

// Event is published to subscribers as renders and frames change.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Activity   study.ActivityID `json:"activity,omitempty"`
	Filename   string           `json:"filename,omitempty"`
	OutputPath string           `json:"output_path,omitempty"`
	TaskID     string           `json:"task_id,omitempty"`
	ImageName  string           `json:"image_name,omitempty"`
	Progress   float64          `json:"progress,omitempty"`
	Exported   bool             `json:"exported,omitempty"`
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

type broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

func newBroker() *broker {
	return &broker{subs: make(map[int]*subscriber)}
}

// subscribe registers a channel with the given buffer. The returned cancel
// function closes the channel; it is safe to call more than once.
func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	sub := &subscriber{ch: make(chan Event, buffer), done: make(chan struct{})}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// publish delivers ev to every subscriber. Progress events are dropped for
// subscribers whose buffer is full; all other kinds wait for the reader.
func (b *broker) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if ev.Kind == EventVideoProgress {
			select {
			case sub.ch <- ev:
			default:
			}
			continue
		}
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}
