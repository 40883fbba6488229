package feed

import (
	"sync"
	"time"

	"github.com/freshlane/realtime-go/internal/model"
)

// Debouncer coalesces bursts of feed events into a single delivery once a
// quiet window elapses. Each delivery is generation-stamped so a timer left
// over from an earlier burst, or from a subscription that has since been
// closed, can never fire into current state.
type Debouncer struct {
	window time.Duration
	flush  func([]model.Message)

	mu         sync.Mutex
	pending    []model.Message
	timer      *time.Timer
	generation int
	stopped    bool
}

func NewDebouncer(window time.Duration, flush func([]model.Message)) *Debouncer {
	return &Debouncer{window: window, flush: flush}
}

// Add queues a message and (re)arms the delivery timer.
func (d *Debouncer) Add(msg model.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = append(d.pending, msg)
	d.generation++
	gen := d.generation

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.fire(gen)
	})
}

func (d *Debouncer) fire(gen int) {
	d.mu.Lock()
	if d.stopped || gen != d.generation || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	d.flush(batch)
}

// Stop cancels any armed timer and discards pending messages.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
