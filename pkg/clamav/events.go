package clamav

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
)

const (
	EventHeartbeat = "heartbeat"
	EventProgress  = "progress"
	EventResult    = "result"
	EventError     = "error"
)

// Event is a single server-sent event.
type Event struct {
	ID   string
	Name string
	Data []byte
}

// EventStream reads server-sent events from a scan response body.
type EventStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	reader *bufio.Reader
	// skipLF is set after a CR so that a directly following LF is not read
	// as an empty line.
	skipLF bool
	logger logr.Logger
}

// NewEventStream wraps r, which must yield a text/event-stream document.
func NewEventStream(r io.ReadCloser) *EventStream {
	ctx, cancel := context.WithCancel(context.Background())
	return newEventStream(ctx, cancel, r, logr.Discard())
}

func newEventStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, logger logr.Logger) *EventStream {
	return &EventStream{
		ctx:    ctx,
		cancel: cancel,
		body:   body,
		reader: bufio.NewReader(body),
		logger: logger,
	}
}

// Next returns the next dispatched event. It returns io.EOF once the stream
// is exhausted.
func (s *EventStream) Next() (Event, error) {
	var event Event
	var data bytes.Buffer
	var hasData bool

	for {
		line, err := s.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, transportError(s.ctx, "reading event stream", err)
		}
		eof := errors.Is(err, io.EOF)

		if line == "" {
			if hasData {
				event.Data = bytes.TrimSuffix(data.Bytes(), []byte("\n"))
				return event, nil
			}
			if eof {
				return Event{}, io.EOF
			}
			event = Event{}
			continue
		}

		if !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event.Name = value
			case "data":
				data.WriteString(value)
				data.WriteByte('\n')
				hasData = true
			case "id":
				event.ID = value
			}
		}

		if eof {
			// The last event is dispatched even if the server did not
			// terminate it with a blank line.
			if hasData {
				event.Data = bytes.TrimSuffix(data.Bytes(), []byte("\n"))
				return event, nil
			}
			return Event{}, io.EOF
		}
	}
}

// readLine returns the next line without its terminator. Lines end with LF,
// CRLF or a bare CR. At the end of the stream the partial line is returned
// together with io.EOF.
func (s *EventStream) readLine() (string, error) {
	var line []byte
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return string(line), err
		}
		if s.skipLF {
			s.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return string(line), nil
		case '\r':
			s.skipLF = true
			return string(line), nil
		}
		line = append(line, b)
	}
}

// Verdict consumes events until the terminal one and decodes it. Progress
// events are skipped. A stream ending without a terminal event results in
// ErrNoVerdict.
func (s *EventStream) Verdict() (Verdict, error) {
	for {
		event, err := s.Next()
		if errors.Is(err, io.EOF) {
			return Verdict{}, ErrNoVerdict
		}
		if err != nil {
			return Verdict{}, err
		}
		verdict, terminal, err := decodeEvent(event)
		if err != nil {
			return Verdict{}, err
		}
		if terminal {
			return verdict, nil
		}
		s.logger.V(2).Info("Received scan progress event", "event", event.Name, "data", string(event.Data))
	}
}

// Close releases the underlying response body and cancels the request.
func (s *EventStream) Close() error {
	defer s.cancel()
	return s.body.Close()
}

type errorEvent struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// decodeEvent reports whether event terminates the stream and, if so, the
// verdict it carries.
func decodeEvent(event Event) (Verdict, bool, error) {
	switch event.Name {
	case EventResult:
		var response ScanResponse
		if err := json.Unmarshal(event.Data, &response); err != nil {
			return Verdict{}, true, fmt.Errorf("decoding %s event: %w", event.Name, err)
		}
		verdict, err := response.Verdict()
		return verdict, true, err
	case EventError:
		var e errorEvent
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return Verdict{}, true, fmt.Errorf("decoding %s event: %w", event.Name, err)
		}
		return Verdict{}, true, &ScanError{StatusCode: e.StatusCode, Message: e.Message}
	case "", "message":
		var response ScanResponse
		if err := json.Unmarshal(event.Data, &response); err != nil || response.Result == "" {
			return Verdict{}, false, nil
		}
		verdict, err := response.Verdict()
		return verdict, true, err
	default:
		return Verdict{}, false, nil
	}
}
