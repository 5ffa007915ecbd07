package sessionlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

type jsonlEntry struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp string    `json:"timestamp"`
	Message   *jsonlMsg `json:"message,omitempty"`
	Version   string    `json:"version,omitempty"`
	CWD       string    `json:"cwd,omitempty"`
	GitBranch string    `json:"gitBranch,omitempty"`
}

type jsonlMsg struct {
	ID    string      `json:"id"`
	Model string      `json:"model"`
	Role  string      `json:"role"`
	Usage *jsonlUsage `json:"usage,omitempty"`
}

type jsonlUsage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	OutputTokens             int `json:"output_tokens"`
}

// recordIDSpace namespaces generated ids for lines without a message id.
var recordIDSpace = uuid.MustParse("5b0c7a52-4f3e-4d1f-9a55-2f64e3d3c1a7")

// fallbackRecordID is stable for a given file and line, so re-reading an
// unchanged file yields the same identities.
func fallbackRecordID(source string, line int) string {
	return uuid.NewSHA1(recordIDSpace, []byte(source+":"+strconv.Itoa(line))).String()
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.000Z", raw); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}

func (e jsonlEntry) toRecord(source string, line int) (core.UsageRecord, bool) {
	ts, ok := parseTimestamp(e.Timestamp)
	if !ok {
		return core.UsageRecord{}, false
	}
	u := e.Message.Usage

	id := strings.TrimSpace(e.Message.ID)
	if id == "" {
		id = fallbackRecordID(source, line)
	}

	model := strings.TrimSpace(e.Message.Model)
	if model == "" {
		model = "unknown"
	}

	return core.UsageRecord{
		Timestamp:        ts,
		Model:            model,
		MessageID:        id,
		RequestID:        strings.TrimSpace(e.RequestID),
		SessionID:        strings.TrimSpace(e.SessionID),
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
		CWD:              strings.TrimSpace(e.CWD),
		GitBranch:        strings.TrimSpace(e.GitBranch),
		ClientVersion:    strings.TrimSpace(e.Version),
	}, true
}
