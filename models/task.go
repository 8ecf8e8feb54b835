package models

// ErrorKind classifies why a task failed. Empty means the task succeeded.
type ErrorKind string

const (
	ErrorKindNone         ErrorKind = ""
	ErrorKindInvalidInput ErrorKind = "invalid_input"
	ErrorKindNoExactMatch ErrorKind = "no_exact_match"
	ErrorKindTransport    ErrorKind = "transport_error"
	ErrorKindDownload     ErrorKind = "download_error"
)

// ResolvedTarget is the cascade's success output. DirectURL is the only
// mandatory field; title and workshop page are best-effort metadata carried
// along for reporting.
type ResolvedTarget struct {
	Title       string
	WorkshopURL string
	DirectURL   string
}

// TaskResult records the terminal outcome of one keyword's resolve-and-fetch
// task. Immutable once the task finishes; the batch report is its only owner.
type TaskResult struct {
	Keyword      string
	OK           bool
	Title        string
	DirectURL    string
	WorkshopURL  string
	FilePath     string
	ErrorKind    ErrorKind
	ErrorMessage string
}
