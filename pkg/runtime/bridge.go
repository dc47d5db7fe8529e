package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/telemetry"
)

// bridgeState tracks one request's progress through the callback protocol.
type bridgeState int

const (
	stateRunning bridgeState = iota
	stateAwaitingCallback
	stateCompleted
	stateFailed
)

// Bridge lets a running guest process invoke host operations mid-execution
// and resume with their results. One Bridge serves all requests; per-request
// state lives in the session created by runFrame. Callbacks from a single
// guest process are handled strictly one at a time in issuance order: the
// read loop is the only consumer of the process's stdout, so a second
// request cannot even be observed before the first response is written.
type Bridge struct {
	catalog *operations.Catalog
	creds   credentials.Provider
	logger  *slog.Logger
}

func NewBridge(catalog *operations.Catalog, creds credentials.Provider, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{catalog: catalog, creds: creds, logger: logger}
}

type session struct {
	state    bridgeState
	answered map[string]bool
}

// runFrame consumes the guest's stdout for one request, servicing callback
// round-trips until the frame ends. frameID == "" selects single-shot
// semantics (the frame ends at EOF); otherwise the frame ends at a
// markerJobDone line carrying frameID.
//
// Returned errors are either *violationError (guest broke the protocol)
// or I/O failures (the process died or the bridge could not write), which
// escalate to infrastructure errors.
func (b *Bridge) runFrame(ctx context.Context, r *bufio.Reader, w io.Writer, frameID string, maxOutput int) (*boundedLines, frameResult, error) {
	sess := &session{state: stateRunning, answered: make(map[string]bool)}
	out := newBoundedLines(maxOutput)

	for {
		line, err := r.ReadString('\n')
		line = trimLine(line)

		if line != "" {
			switch {
			case strings.HasPrefix(line, markerCallback):
				if cbErr := b.handleCallback(ctx, sess, w, line[len(markerCallback):]); cbErr != nil {
					sess.state = stateFailed
					return out, frameResult{}, cbErr
				}

			case strings.HasPrefix(line, markerJobDone):
				var res frameResult
				if jsonErr := json.Unmarshal([]byte(line[len(markerJobDone):]), &res); jsonErr != nil {
					sess.state = stateFailed
					return out, frameResult{}, violationf("malformed frame terminator: %v", jsonErr)
				}
				if frameID == "" || res.ID != frameID {
					sess.state = stateFailed
					return out, frameResult{}, violationf("frame terminator for unknown frame %q", res.ID)
				}
				sess.state = stateCompleted
				return out, res, nil

			case line == markerReady:
				// Harness readiness announcements between frames.

			default:
				out.append(line)
			}
		}

		if err != nil {
			if err == io.EOF && frameID == "" {
				sess.state = stateCompleted
				return out, frameResult{}, nil
			}
			sess.state = stateFailed
			return out, frameResult{}, err
		}
	}
}

// handleCallback services one host operation request while the guest
// blocks. Operation failures travel back inside the response; only
// protocol breaches and write failures return an error.
func (b *Bridge) handleCallback(ctx context.Context, sess *session, w io.Writer, raw string) error {
	sess.state = stateAwaitingCallback
	defer func() { sess.state = stateRunning }()

	var req callbackRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return violationf("malformed callback request: %v", err)
	}
	if req.ID == "" {
		return violationf("callback request without correlation id")
	}
	if sess.answered[req.ID] {
		return violationf("callback correlation id %q reused", req.ID)
	}

	resp := callbackResponse{ID: req.ID}
	status := "ok"

	start := time.Now()
	result, opErr := b.catalog.Invoke(ctx, req.Operation, req.Arguments, b.creds)
	if opErr != nil {
		resp.Error = &callbackError{Kind: string(opErr.Kind), Message: opErr.Message}
		status = "error"
		b.logger.Debug("callback failed",
			slog.String("operation", req.Operation),
			slog.String("kind", string(opErr.Kind)),
			slog.String("error", opErr.Message),
		)
	} else {
		resp.Result = result
	}

	// Guest-supplied names only become labels when they exist in the
	// catalog, keeping metric cardinality bounded.
	op := req.Operation
	if _, known := b.catalog.Get(req.Operation); !known {
		op = "(unknown)"
	}
	telemetry.Metrics.CallbacksTotal.WithLabelValues(op, status).Inc()
	telemetry.Metrics.CallbackDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	data, err := json.Marshal(resp)
	if err != nil {
		return violationf("unencodable callback response: %v", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}

	sess.answered[req.ID] = true
	return nil
}
