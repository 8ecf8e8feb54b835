package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/workshopdl/workshopdl/models"
)

// reportHeader is the column layout of the batch mapping file.
const reportHeader = "keyword\tworkshop_url\ttitle\tdirect_url\tstatus\terror\n"

// WriteMappingReport writes the durable audit trail of a batch run: one
// tab-separated row per task in a timestamped file under dir.
func WriteMappingReport(dir string, results []models.TaskResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	name := fmt.Sprintf("workshop_mapping_%s.txt", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(reportHeader); err != nil {
		return "", fmt.Errorf("failed to write report header: %w", err)
	}
	for _, r := range results {
		status := "failed"
		if r.OK {
			status = "ok"
		}
		row := strings.Join([]string{
			reportField(r.Keyword),
			reportField(r.WorkshopURL),
			reportField(r.Title),
			reportField(r.DirectURL),
			status,
			reportField(r.ErrorMessage),
		}, "\t")
		if _, err := f.WriteString(row + "\n"); err != nil {
			return "", fmt.Errorf("failed to write report row: %w", err)
		}
	}
	return path, nil
}

// reportField keeps tab-delimited rows parseable: embedded tabs and
// newlines collapse to spaces.
func reportField(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}
