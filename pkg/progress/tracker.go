package progress

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	activeWindow = 5
	maxQuiet     = 4 * time.Second
	labelWidth   = 36
)

type taskState struct {
	label      string
	phase      Phase
	downloaded int64
	totalSize  int64
	speed      float64
	etaSeconds float64
	updatedAt  time.Time
}

// Tracker owns the shared batch state. Any task goroutine may push samples
// through Observe; the reporter goroutine calls Render on its own schedule.
// All mutation goes through one mutex — the per-render work is bounded by
// the worker count, so finer locking buys nothing.
type Tracker struct {
	mu        sync.Mutex
	out       io.Writer
	total     int
	completed int
	succeeded int
	failed    int
	tasks     map[string]*taskState

	offset   int
	lastSig  string
	lastEmit time.Time
	lastDone int
}

// NewTracker seeds one progress slot per task key. Duplicate keys collapse
// into a single slot.
func NewTracker(keys []string, out io.Writer) *Tracker {
	t := &Tracker{
		out:      out,
		total:    len(keys),
		tasks:    make(map[string]*taskState, len(keys)),
		lastDone: -1,
	}
	for _, k := range keys {
		t.tasks[k] = &taskState{
			label:      TruncateLabel(k, 48),
			phase:      PhaseQueued,
			etaSeconds: -1,
			updatedAt:  now(),
		}
	}
	return t
}

// Observe folds a sample into the task's slot. Samples for unknown keys are
// dropped, and a slot already in a terminal phase is never regressed.
func (t *Tracker) Observe(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.tasks[s.TaskKey]
	if !ok {
		return
	}
	if state.phase.Terminal() {
		return
	}
	if s.Phase != "" {
		state.phase = s.Phase
	}
	if s.Label != "" {
		state.label = s.Label
	}
	state.downloaded = s.Downloaded
	state.totalSize = s.TotalSize
	state.speed = s.Speed
	state.etaSeconds = s.ETASeconds
	state.updatedAt = now()
}

// Complete marks a task terminal and bumps the batch counters. Called
// exactly once per task by the orchestrator.
func (t *Tracker) Complete(key string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	if ok {
		t.succeeded++
	} else {
		t.failed++
	}
	if state, found := t.tasks[key]; found {
		if ok {
			state.phase = PhaseDone
		} else {
			state.phase = PhaseFailed
		}
		state.speed = 0
		state.updatedAt = now()
	}
}

// Counts returns the batch counters.
func (t *Tracker) Counts() (completed, total, succeeded, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.total, t.succeeded, t.failed
}

// Aggregate returns the summed download state across all tasks: bytes
// downloaded, known total bytes, combined speed of actively downloading
// tasks, and the aggregate ETA in seconds (negative when unknown). The ETA
// is only estimated when the combined speed clears a 1 B/s noise floor.
func (t *Tracker) Aggregate() (downloaded, known int64, speed float64, etaSeconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aggregateLocked()
}

func (t *Tracker) aggregateLocked() (downloaded, known int64, speed float64, etaSeconds float64) {
	for _, s := range t.tasks {
		downloaded += s.downloaded
		if s.totalSize > 0 {
			known += s.totalSize
		}
		if s.phase == PhaseDownloading {
			speed += s.speed
		}
	}
	etaSeconds = -1
	if speed > 1 && known > 0 {
		remain := known - downloaded
		if remain < 0 {
			remain = 0
		}
		etaSeconds = float64(remain) / speed
	}
	return downloaded, known, speed, etaSeconds
}

// Render emits a batch summary plus a rotating window of active tasks.
// Output is suppressed when nothing changed since the last emission and the
// quiet interval has not elapsed; force bypasses suppression entirely and is
// used for the final render.
func (t *Tracker) Render(force bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, _, speed, eta := t.aggregateLocked()
	donePct := 100.0
	if t.total > 0 {
		donePct = float64(t.completed) * 100.0 / float64(t.total)
	}
	summary := fmt.Sprintf("[BATCH] progress %d/%d (%5.1f%%) | ok %d fail %d | speed %s/s | remaining %s",
		t.completed, t.total, donePct, t.succeeded, t.failed,
		FormatBytes(speed), FormatDuration(eta))

	type entry struct {
		key   string
		state *taskState
	}
	var active []entry
	for k, s := range t.tasks {
		if s.phase == PhaseDownloading {
			active = append(active, entry{k, s})
		}
	}

	if len(active) == 0 {
		if !force && t.completed == t.lastDone {
			return
		}
		t.lastSig = fmt.Sprintf("%d|%d|%d|none", t.completed, t.succeeded, t.failed)
		t.lastEmit = now()
		t.lastDone = t.completed
		fmt.Fprintln(t.out, summary)
		if force {
			fmt.Fprintln(t.out, "[BATCH] active: (none)")
		}
		return
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].state.updatedAt.After(active[j].state.updatedAt)
	})

	show := active
	if len(active) > activeWindow {
		off := t.offset % len(active)
		rolled := append(append([]entry{}, active[off:]...), active[:off]...)
		show = rolled[:activeWindow]
		t.offset = (t.offset + activeWindow) % len(active)
	}

	sigParts := []string{fmt.Sprintf("%d|%d|%d|%d", t.completed, t.succeeded, t.failed, len(active))}
	for _, e := range show {
		sigParts = append(sigParts, fmt.Sprintf("%s|%d|%d|%d",
			e.key, e.state.downloaded, e.state.totalSize, int64(e.state.speed)))
	}
	sig := strings.Join(sigParts, ";")
	if !force && sig == t.lastSig && now().Sub(t.lastEmit) < maxQuiet {
		return
	}
	t.lastSig = sig
	t.lastEmit = now()
	t.lastDone = t.completed

	fmt.Fprintln(t.out, summary)
	for _, e := range show {
		s := e.state
		label := TruncateLabel(s.label, labelWidth)
		if s.totalSize > 0 {
			pct := float64(s.downloaded) * 100.0 / float64(s.totalSize)
			if pct > 100 {
				pct = 100
			}
			fmt.Fprintf(t.out, "[ACTIVE] %s | %5.1f%% | %s/%s | %s/s | ETA %s\n",
				label, pct, FormatBytes(float64(s.downloaded)), FormatBytes(float64(s.totalSize)),
				FormatBytes(s.speed), FormatDuration(s.etaSeconds))
		} else {
			fmt.Fprintf(t.out, "[ACTIVE] %s | %s | %s/s | ETA --:--\n",
				label, FormatBytes(float64(s.downloaded)), FormatBytes(s.speed))
		}
	}
}
