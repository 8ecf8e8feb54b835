// Package progress carries download progress from concurrently running
// tasks to a single rate-limited textual reporter.
package progress

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Phase identifies where a task is in its lifecycle. Done and Failed are
// terminal; a task's phase never regresses out of a terminal state.
type Phase string

const (
	PhaseQueued      Phase = "queued"
	PhaseResolving   Phase = "resolving"
	PhaseDownloading Phase = "downloading"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Terminal reports whether p is a final phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Sample is one progress observation for a task. ETASeconds is negative when
// no estimate is available (unknown total size or zero measured speed).
type Sample struct {
	TaskKey    string
	Label      string
	Phase      Phase
	Downloaded int64
	TotalSize  int64
	Speed      float64 // bytes per second
	ETASeconds float64 // < 0 means unknown
}

// Observer receives progress samples. Implementations must be safe for
// concurrent use; the tracker's Observe is the usual target.
type Observer func(Sample)

// FormatBytes renders a byte count for humans.
func FormatBytes(n float64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatDuration renders seconds as MM:SS, or HH:MM:SS past the hour.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		return "--:--"
	}
	sec := int(seconds + 0.5)
	h := sec / 3600
	m := sec % 3600 / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// TruncateLabel caps a display label at n runes.
func TruncateLabel(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var now = time.Now
