// sim/kernel.go
package sim

import (
	"bufio"
	"container/heap"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// timedEvent is a callback scheduled to run at a fixed simulation time.
// seq breaks timestamp ties so that events added first run first.
type timedEvent struct {
	time      float64
	seq       int64
	fn        func()
	cancelled bool
}

// eventQueue implements heap.Interface and orders events by timestamp.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type eventQueue []*timedEvent

func (eq eventQueue) Len() int { return len(eq) }
func (eq eventQueue) Less(i, j int) bool {
	if eq[i].time != eq[j].time {
		return eq[i].time < eq[j].time
	}
	return eq[i].seq < eq[j].seq
}
func (eq eventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *eventQueue) Push(x any) {
	*eq = append(*eq, x.(*timedEvent))
}

func (eq *eventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

// EventHandle identifies a scheduled event so it can be rescheduled or
// cancelled before it fires.
type EventHandle struct {
	ev *timedEvent
}

// Kernel is the discrete-event core: it holds simulation time, the event
// queue, and per-issuer CSV output streams rooted at an output directory.
type Kernel struct {
	clock     float64
	seq       int64
	events    eventQueue
	outputDir string
	outputs   map[string]*bufio.Writer
	files     []*os.File
}

// NewKernel creates a kernel whose Output streams are written under outputDir.
func NewKernel(outputDir string) *Kernel {
	return &Kernel{
		events:    make(eventQueue, 0),
		outputDir: outputDir,
		outputs:   make(map[string]*bufio.Writer),
	}
}

// Now returns the current simulation time.
func (k *Kernel) Now() float64 {
	return k.clock
}

// Add schedules fn to run delay time units after the current time.
// Events scheduled for the same instant run in the order they were added.
func (k *Kernel) Add(delay float64, fn func()) *EventHandle {
	if delay < 0 {
		panic(fmt.Sprintf("Add: negative delay %v", delay))
	}
	ev := &timedEvent{time: k.clock + delay, seq: k.seq, fn: fn}
	k.seq++
	heap.Push(&k.events, ev)
	return &EventHandle{ev: ev}
}

// Reschedule cancels a pending event and schedules its callback again,
// delay time units from now. A handle whose event already ran is a no-op
// cancel followed by a fresh Add.
func (k *Kernel) Reschedule(h *EventHandle, delay float64) *EventHandle {
	if h == nil || h.ev == nil {
		panic("Reschedule: nil handle")
	}
	h.ev.cancelled = true
	return k.Add(delay, h.ev.fn)
}

// Cancel marks a pending event so it will not run. Cancelling an event that
// already ran is a no-op.
func (k *Kernel) Cancel(h *EventHandle) {
	if h == nil || h.ev == nil {
		return
	}
	h.ev.cancelled = true
}

// Run drains the event queue with a monotone clock, executing every event
// with timestamp <= until (inclusive). Events beyond the horizon stay
// queued. On return the clock sits at the horizon (for a finite one),
// whether the queue deferred past it or drained before reaching it.
func (k *Kernel) Run(until float64) {
	for len(k.events) > 0 {
		ev := heap.Pop(&k.events).(*timedEvent)
		if ev.cancelled {
			continue
		}
		if ev.time > until {
			// put it back for a later Run with a larger horizon
			heap.Push(&k.events, ev)
			break
		}
		// advance the clock
		k.clock = ev.time
		logrus.Debugf("[t=%010.3f] executing event #%d", k.clock, ev.seq)
		ev.fn()
	}
	if !math.IsInf(until, 1) && k.clock < until {
		k.clock = until
	}
}

// Output appends one line to the stream named by issuer. The stream is
// backed by sim-<issuer>.csv in the kernel's output directory and is
// created lazily on first use.
func (k *Kernel) Output(issuer string, line string) error {
	w, ok := k.outputs[issuer]
	if !ok {
		name := filepath.Join(k.outputDir, "sim-"+issuer+".csv")
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("open output %s: %w", name, err)
		}
		k.files = append(k.files, f)
		w = bufio.NewWriter(f)
		k.outputs[issuer] = w
	}
	if _, err := w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write output %s: %w", issuer, err)
	}
	return nil
}

// Close flushes and closes all output streams. The kernel must not be used
// for further Output calls afterwards.
func (k *Kernel) Close() error {
	var firstErr error
	for issuer, w := range k.outputs {
		if err := w.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush output %s: %w", issuer, err)
		}
	}
	for _, f := range k.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	k.outputs = make(map[string]*bufio.Writer)
	k.files = nil
	return firstErr
}
