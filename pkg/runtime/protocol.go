package runtime

import (
	"encoding/json"
	"strings"
	"sync"
)

// Reserved stream markers. The guest harness prefixes control lines with
// these so they can be told apart from ordinary diagnostics; everything
// else on stdout is free-form guest output.
const (
	// markerJob frames one code submission on a pooled process's stdin.
	markerJob = "@@JOB@@"

	// markerJobDone terminates a pooled frame on stdout. Its payload
	// carries the frame id and, for guest-raised errors, a message.
	markerJobDone = "@@JOBDONE@@"

	// markerCallback carries a host operation request from the guest.
	markerCallback = "@@HOSTCALL@@"

	// markerReady is emitted once by a pooled harness when it is able to
	// accept frames.
	markerReady = "@@READY@@"
)

// maxExcerptBytes bounds the raw-output excerpt attached to protocol
// errors. Tail-biased: the end of the stream is where the payload should
// have been.
const maxExcerptBytes = 512

// jobFrame is the envelope written after markerJob on a pooled stdin.
type jobFrame struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// frameResult is the envelope following markerJobDone.
type frameResult struct {
	ID string `json:"id"`
	// Error carries a guest-raised error; the pooled harness catches
	// guest throws so the process survives for reuse.
	Error string `json:"error,omitempty"`
}

// callbackRequest is the envelope following markerCallback.
type callbackRequest struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments"`
}

// callbackError mirrors operations.OpError on the wire.
type callbackError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// callbackResponse is written to the guest's stdin as a single JSON line
// while it blocks awaiting the result.
type callbackResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *callbackError  `json:"error,omitempty"`
}

func encodeJobFrame(id, code string) ([]byte, error) {
	data, err := json.Marshal(jobFrame{ID: id, Code: code})
	if err != nil {
		return nil, err
	}
	line := make([]byte, 0, len(markerJob)+len(data)+1)
	line = append(line, markerJob...)
	line = append(line, data...)
	line = append(line, '\n')
	return line, nil
}

// recoverPayload scans collected output lines from the end for the last
// one that parses as a complete structured payload. Guest code
// legitimately emits diagnostics before its final value, and the protocol
// cannot assume how much.
func recoverPayload(lines []string) (json.RawMessage, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			continue
		}
		if json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed), true
		}
	}
	return nil, false
}

func trimLine(s string) string {
	return strings.TrimRight(s, "\r\n")
}

// excerpt returns a bounded tail of the raw output for diagnostics.
func excerpt(lines []string) string {
	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	if len(joined) <= maxExcerptBytes {
		return joined
	}
	return "..." + joined[len(joined)-maxExcerptBytes:]
}

// boundedLines keeps the tail of an output stream within a byte budget.
// Result recovery only ever looks backwards from the end, so dropping the
// oldest lines is safe.
type boundedLines struct {
	lines []string
	bytes int
	max   int
}

func newBoundedLines(max int) *boundedLines {
	if max <= 0 {
		max = 1024 * 1024
	}
	return &boundedLines{max: max}
}

func (b *boundedLines) append(line string) {
	b.lines = append(b.lines, line)
	b.bytes += len(line)
	for b.bytes > b.max && len(b.lines) > 1 {
		b.bytes -= len(b.lines[0])
		b.lines = b.lines[1:]
	}
}

// boundedBuffer keeps the tail of a byte stream within a budget. Used for
// guest stderr, where only the most recent output matters for error
// messages. Safe for concurrent use; exec.Cmd writes from its own
// goroutine.
type boundedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newBoundedBuffer(max int) *boundedBuffer {
	if max <= 0 {
		max = 1024 * 1024
	}
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
