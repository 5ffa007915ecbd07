package sessionlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

const (
	chunkSize    = 64 * 1024
	maxLineBytes = 1024 * 1024
)

var (
	assistantMarker = []byte(`"assistant"`)
	usageMarker     = []byte(`"usage"`)
)

// ParseStats counts what happened to the lines of one file.
type ParseStats struct {
	Lines        int
	Records      int
	DecodeErrors int
	Oversized    int
	Truncated    int
}

func (s ParseStats) Corrupt() int {
	return s.DecodeErrors + s.Oversized + s.Truncated
}

func (s *ParseStats) add(o ParseStats) {
	s.Lines += o.Lines
	s.Records += o.Records
	s.DecodeErrors += o.DecodeErrors
	s.Oversized += o.Oversized
	s.Truncated += o.Truncated
}

type lineParser struct {
	source  string
	records []core.UsageRecord
	stats   ParseStats
}

func (p *lineParser) handle(line []byte, lineNo int) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	p.stats.Lines++

	// Most lines are user turns, tool results or summaries; skip them
	// before paying for a decode.
	if !bytes.Contains(line, assistantMarker) || !bytes.Contains(line, usageMarker) {
		return
	}

	var entry jsonlEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		p.stats.DecodeErrors++
		return
	}
	if entry.Type != "assistant" || entry.Message == nil || entry.Message.Usage == nil {
		return
	}
	rec, ok := entry.toRecord(p.source, lineNo)
	if !ok {
		p.stats.DecodeErrors++
		return
	}
	p.records = append(p.records, rec)
	p.stats.Records++
}

// ParseStream reads newline-delimited JSON from r in fixed-size chunks and
// returns the assistant usage records it contains. source identifies the
// stream for generated record ids.
//
// Lines that grow past maxLineBytes without a newline are dropped up to the
// next newline. A final line without a newline is only parsed when it ends
// in '}', since the writer may still be appending to it.
func ParseStream(r io.Reader, source string) ([]core.UsageRecord, ParseStats, error) {
	p := &lineParser{source: source}
	buf := make([]byte, chunkSize)
	var pending []byte
	discarding := false
	lineNo := 0

	for {
		n, err := r.Read(buf)
		chunk := buf[:n]
		for len(chunk) > 0 {
			idx := bytes.IndexByte(chunk, '\n')
			if idx < 0 {
				if !discarding {
					pending = append(pending, chunk...)
					if len(pending) > maxLineBytes {
						pending = pending[:0]
						p.stats.Oversized++
						discarding = true
					}
				}
				break
			}

			line := chunk[:idx]
			chunk = chunk[idx+1:]
			lineNo++

			if discarding {
				discarding = false
				continue
			}
			if len(pending) > 0 {
				pending = append(pending, line...)
				if len(pending) > maxLineBytes {
					p.stats.Oversized++
				} else {
					p.handle(pending, lineNo)
				}
				pending = pending[:0]
				continue
			}
			p.handle(line, lineNo)
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.records, p.stats, err
		}
	}

	if tail := bytes.TrimRight(pending, " \t\r"); len(tail) > 0 {
		if tail[len(tail)-1] == '}' {
			p.handle(tail, lineNo+1)
		} else {
			p.stats.Truncated++
		}
	}

	return p.records, p.stats, nil
}
