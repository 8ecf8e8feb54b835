// Package download streams resolved payloads to disk in fixed-size chunks,
// reporting byte counts, speed, and ETA along the way. Files can be large;
// nothing here buffers a whole body in memory.
package download

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/workshopdl/workshopdl/pkg/extract"
	"github.com/workshopdl/workshopdl/pkg/progress"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

const (
	chunkSize   = 256 * 1024
	logInterval = 1200 * time.Millisecond
	decile      = 0.1
)

// Streamer performs byte transfers over an existing transport session.
type Streamer struct {
	session *transport.Session
	logger  *slog.Logger
}

// NewStreamer returns a Streamer. logger is used for direct textual progress
// when a fetch is run without an observer.
func NewStreamer(session *transport.Session, logger *slog.Logger) *Streamer {
	return &Streamer{session: session, logger: logger}
}

// Fetch downloads rawURL into destPath and returns the bytes written.
// Progress goes to obs when supplied, otherwise to the logger. A synthetic
// sample brackets each end of the transfer: one before the first chunk and
// one after the last, so observers always see a well-formed begin and end
// regardless of transfer speed. On error the partial file is left on disk
// for a caller-level retry to overwrite.
func (d *Streamer) Fetch(ctx context.Context, rawURL, destPath, taskKey, label string, obs progress.Observer) (int64, error) {
	resp, err := d.session.Stream(ctx, rawURL)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer out.Close()

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	tag := progress.TruncateLabel(firstNonEmpty(label, path.Base(destPath), "download"), 48)
	emit := d.emitter(taskKey, tag, obs)

	emit(progress.Sample{
		Phase:      progress.PhaseDownloading,
		TotalSize:  total,
		ETASeconds: -1,
	})

	var (
		downloaded int64
		start      = time.Now()
		lastLog    time.Time
		nextMark   = decile
	)
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, wErr := out.Write(buf[:n]); wErr != nil {
				return downloaded, fmt.Errorf("failed to write %s: %w", destPath, wErr)
			}
			downloaded += int64(n)

			elapsed := time.Since(start).Seconds()
			if elapsed < 0.001 {
				elapsed = 0.001
			}
			speed := float64(downloaded) / elapsed
			byTime := time.Since(lastLog) >= logInterval
			byMark := total > 0 && float64(downloaded)/float64(total) >= nextMark
			if byTime || byMark {
				eta := -1.0
				if total > 0 {
					remain := total - downloaded
					if remain < 0 {
						remain = 0
					}
					eta = float64(remain) / maxf(1, speed)
					for nextMark <= 1.0 && float64(downloaded)/float64(total) >= nextMark {
						nextMark += decile
					}
				}
				emit(progress.Sample{
					Phase:      progress.PhaseDownloading,
					Downloaded: downloaded,
					TotalSize:  total,
					Speed:      speed,
					ETASeconds: eta,
				})
				lastLog = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return downloaded, fmt.Errorf("transfer interrupted after %d bytes: %w", downloaded, readErr)
		}
	}

	elapsed := time.Since(start).Seconds()
	if elapsed < 0.001 {
		elapsed = 0.001
	}
	emit(progress.Sample{
		Phase:      progress.PhaseDownloading,
		Downloaded: downloaded,
		TotalSize:  total,
		Speed:      float64(downloaded) / elapsed,
		ETASeconds: 0,
	})
	return downloaded, nil
}

// emitter routes samples to the observer, or to plain log lines when no
// observer is attached (single-task runs).
func (d *Streamer) emitter(taskKey, tag string, obs progress.Observer) func(progress.Sample) {
	return func(s progress.Sample) {
		s.TaskKey = taskKey
		s.Label = tag
		if obs != nil {
			obs(s)
			return
		}
		if s.TotalSize > 0 {
			pct := float64(s.Downloaded) * 100.0 / float64(s.TotalSize)
			if pct > 100 {
				pct = 100
			}
			d.logger.Info("download progress",
				"label", tag,
				"pct", fmt.Sprintf("%.1f", pct),
				"downloaded", progress.FormatBytes(float64(s.Downloaded)),
				"total", progress.FormatBytes(float64(s.TotalSize)),
				"speed", progress.FormatBytes(s.Speed)+"/s",
				"eta", progress.FormatDuration(s.ETASeconds))
		} else {
			d.logger.Info("download progress",
				"label", tag,
				"downloaded", progress.FormatBytes(float64(s.Downloaded)),
				"speed", progress.FormatBytes(s.Speed)+"/s")
		}
	}
}

// OutputFilename derives a destination filename from a direct URL, falling
// back to the item title when the URL ends in a CGI gateway stub instead of
// a real name.
func OutputFilename(directURL, title string) string {
	name := ""
	if u, err := url.Parse(directURL); err == nil {
		name = path.Base(u.Path)
	}
	lower := strings.ToLower(name)
	if name == "" || name == "." || name == "/" || lower == "dl.cgi" || lower == "d.cgi" {
		name = extract.SafeFilename(title) + ".zip"
	}
	return html.UnescapeString(name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
