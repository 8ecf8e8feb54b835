// Package batch runs resolve-and-download tasks for a set of keywords over
// a bounded worker pool, with per-task failure isolation, whole-task
// retries, and a live aggregate progress reporter.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/workshopdl/workshopdl/models"
	"github.com/workshopdl/workshopdl/pkg/cascade"
	"github.com/workshopdl/workshopdl/pkg/download"
	"github.com/workshopdl/workshopdl/pkg/extract"
	"github.com/workshopdl/workshopdl/pkg/progress"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

// ErrNoKeywords is the whole-run failure for an empty batch.
var ErrNoKeywords = errors.New("no keywords supplied")

const (
	reportInterval = 1500 * time.Millisecond
	taskRetryPause = time.Second
)

// Options configures one batch run.
type Options struct {
	LinkOnly bool
	OutDir   string
	Timeout  time.Duration
	Retries  int
	Workers  int
	Sites    models.Sites

	// Out receives the human-readable progress report (normally stdout).
	Out io.Writer
}

// Orchestrator coordinates the batch: it owns no per-task state, only the
// logger and the wiring.
type Orchestrator struct {
	logger *slog.Logger
}

// New returns an Orchestrator.
func New(logger *slog.Logger) *Orchestrator {
	return &Orchestrator{logger: logger}
}

// Run executes every keyword as an independent task and returns exactly one
// TaskResult per input keyword, in completion order. One task's failure
// never aborts its siblings; the only run-level error is an empty keyword
// list. For multi-keyword runs a tab-delimited mapping report is written to
// the output directory.
func (o *Orchestrator) Run(ctx context.Context, scope *models.GameRecord, keywords []string, opts Options) ([]models.TaskResult, error) {
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if scope != nil {
		o.logger.Info("scoped search", "game", scope.Name, "app_id", scope.AppID, "slug", scope.Slug)
	} else {
		o.logger.Info("global search (all games)")
	}
	o.logger.Info("batch starting",
		"tasks", len(keywords), "workers", opts.Workers,
		"timeout", opts.Timeout, "retries", opts.Retries)
	o.logger.Warn("search with full official titles; partial names will not match")

	// Progress tracking only pays off when several downloads compete for
	// attention. Single-keyword and link-only runs log directly instead.
	trackProgress := !opts.LinkOnly && len(keywords) > 1

	var tracker *progress.Tracker
	var obs progress.Observer
	reporterDone := make(chan struct{})
	stopReporter := make(chan struct{})
	if trackProgress {
		tracker = progress.NewTracker(keywords, opts.Out)
		obs = tracker.Observe
		go func() {
			defer close(reporterDone)
			ticker := time.NewTicker(reportInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					tracker.Render(false)
				case <-stopReporter:
					return
				}
			}
		}()
	} else {
		close(reporterDone)
	}

	jobs := make(chan string, len(keywords))
	results := make(chan models.TaskResult, len(keywords))
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for kw := range jobs {
				res := o.runOne(ctx, scope, kw, opts, obs)
				if tracker != nil {
					tracker.Complete(kw, res.OK)
				}
				o.logOutcome(res, opts.LinkOnly, len(keywords) == 1)
				results <- res
			}
		}()
	}

	for _, kw := range keywords {
		jobs <- kw
	}
	close(jobs)
	wg.Wait()
	close(results)

	// Reporter terminates only after workers are done, then renders one
	// final forced summary so the last state is never dropped.
	close(stopReporter)
	<-reporterDone
	if tracker != nil {
		tracker.Render(true)
	}

	all := make([]models.TaskResult, 0, len(keywords))
	succeeded := 0
	for res := range results {
		all = append(all, res)
		if res.OK {
			succeeded++
		}
	}
	o.logger.Info("batch summary", "success", succeeded, "failed", len(all)-succeeded)

	if len(keywords) > 1 {
		path, err := WriteMappingReport(opts.OutDir, all)
		if err != nil {
			o.logger.Error("failed to write mapping report", "error", err)
		} else {
			o.logger.Info("batch mapping saved", "path", path)
		}
	}
	return all, nil
}

// runOne executes a single keyword end to end. Download failures trigger a
// full re-resolve/re-fetch cycle up to the retry budget; resolution dead
// ends are terminal immediately.
func (o *Orchestrator) runOne(ctx context.Context, scope *models.GameRecord, keyword string, opts Options, obs progress.Observer) models.TaskResult {
	result := models.TaskResult{Keyword: keyword}

	searchText := extract.CleanKeyword(keyword)
	if searchText == "" {
		result.ErrorKind = models.ErrorKindInvalidInput
		result.ErrorMessage = "empty keyword"
		return result
	}

	if obs != nil {
		obs(progress.Sample{TaskKey: keyword, Phase: progress.PhaseResolving, ETASeconds: -1})
	}

	// Each task gets its own cookie jar so sessions never bleed across
	// concurrently running tasks.
	session := transport.NewSession(opts.Timeout, opts.Retries)
	resolver := cascade.NewResolver(session, opts.Sites, o.logger)
	streamer := download.NewStreamer(session, o.logger)

	attempts := opts.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(taskRetryPause):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
			if lastErr != nil && ctx.Err() != nil {
				break
			}
			o.logger.Info("retrying task", "keyword", keyword, "attempt", attempt+1)
		}

		target, err := resolver.Resolve(ctx, scope, searchText)
		if err != nil {
			result.ErrorKind = resolveErrorKind(err)
			result.ErrorMessage = err.Error()
			return result
		}
		result.Title = target.Title
		result.WorkshopURL = target.WorkshopURL
		result.DirectURL = target.DirectURL

		if opts.LinkOnly {
			result.OK = true
			result.ErrorKind = models.ErrorKindNone
			result.ErrorMessage = ""
			return result
		}

		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			result.ErrorKind = models.ErrorKindDownload
			result.ErrorMessage = err.Error()
			return result
		}
		name := download.OutputFilename(target.DirectURL, firstNonEmpty(target.Title, searchText))
		destPath := filepath.Join(opts.OutDir, name)

		if _, err := streamer.Fetch(ctx, target.DirectURL, destPath, keyword, firstNonEmpty(target.Title, searchText), obs); err != nil {
			lastErr = err
			continue
		}
		result.FilePath = destPath
		result.OK = true
		result.ErrorKind = models.ErrorKindNone
		result.ErrorMessage = ""
		return result
	}

	result.ErrorKind = models.ErrorKindDownload
	if lastErr != nil {
		result.ErrorMessage = lastErr.Error()
	} else {
		result.ErrorMessage = "download failed"
	}
	return result
}

func (o *Orchestrator) logOutcome(res models.TaskResult, linkOnly, single bool) {
	if !res.OK {
		o.logger.Warn("task failed", "keyword", res.Keyword, "kind", string(res.ErrorKind), "error", res.ErrorMessage)
		return
	}
	if single && res.WorkshopURL != "" {
		o.logger.Info("workshop page", "keyword", res.Keyword, "url", res.WorkshopURL)
	}
	if linkOnly {
		o.logger.Info("resolved", "keyword", res.Keyword, "url", res.DirectURL)
	} else {
		o.logger.Info("downloaded", "keyword", res.Keyword, "file", res.FilePath)
	}
}

func resolveErrorKind(err error) models.ErrorKind {
	if errors.Is(err, cascade.ErrNoExactMatch) {
		return models.ErrorKindNoExactMatch
	}
	return models.ErrorKindTransport
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Keywords assembles the batch's keyword list from an inline keyword and/or
// a list file (one keyword per line, # comments and blanks skipped).
func Keywords(keyword, listFile string) ([]string, error) {
	var tasks []string
	if trimmed := strings.TrimSpace(keyword); trimmed != "" {
		tasks = append(tasks, trimmed)
	}
	if listFile != "" {
		data, err := os.ReadFile(listFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read keyword list: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			s := strings.TrimSpace(line)
			if s != "" && !strings.HasPrefix(s, "#") {
				tasks = append(tasks, s)
			}
		}
	}
	return tasks, nil
}
