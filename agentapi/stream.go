// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package agentapi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/agentdeck/agentdeck/lib/netutil"
)

// maxFrameSize bounds a single push-channel frame: 16 MB. A frame
// carries at most one message part, so anything near this size means
// the stream is corrupt.
const maxFrameSize = 16 << 20

// EventStream is an open push channel. Frames are returned in arrival
// order as raw bytes; decoding is the caller's concern so that journal
// taps can record exactly what came off the wire.
//
// An EventStream is not safe for concurrent use. Next blocks until a
// frame arrives, the stream fails, or the context passed to OpenEvents
// is canceled.
type EventStream struct {
	response *http.Response
	reader   *bufio.Reader
	data     bytes.Buffer
}

// OpenEvents opens the push channel for a working directory. The
// returned stream stays open until the server closes it, the transport
// fails, ctx is canceled, or Close is called. It never reconnects by
// itself; that policy belongs to the caller.
func (c *Client) OpenEvents(ctx context.Context, directory string) (*EventStream, error) {
	requestURL := c.baseURL + "/event"
	if directory != "" {
		requestURL += "?directory=" + url.QueryEscape(directory)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("agentapi: creating event stream request: %w", err)
	}
	request.Header.Set("Accept", "text/event-stream")
	request.Header.Set("Cache-Control", "no-cache")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("agentapi: opening event stream failed: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		body, _ := netutil.ReadResponse(response.Body)
		response.Body.Close()
		return nil, fmt.Errorf("agentapi: opening event stream failed: %w",
			serverErrorFrom(http.MethodGet, "/event", response.StatusCode, body))
	}

	c.logger.Debug("event stream open",
		"endpoint", c.baseURL,
		"directory", directory)

	return &EventStream{
		response: response,
		reader:   bufio.NewReaderSize(response.Body, 64<<10),
	}, nil
}

// Next blocks until the next frame and returns its payload. The
// returned slice is owned by the caller. Any error, including io.EOF
// on orderly server close, means the channel is dead and must be
// reopened.
func (s *EventStream) Next() ([]byte, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("agentapi: reading event stream: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// Blank line terminates an event. Blank lines between
			// events (keepalives) carry no data and are skipped.
			if s.data.Len() == 0 {
				continue
			}
			frame := make([]byte, s.data.Len())
			copy(frame, s.data.Bytes())
			s.data.Reset()
			return frame, nil

		case strings.HasPrefix(line, ":"):
			// Comment, used by servers as a heartbeat.

		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			value = strings.TrimPrefix(value, " ")
			if s.data.Len() > 0 {
				s.data.WriteByte('\n')
			}
			s.data.WriteString(value)
			if s.data.Len() > maxFrameSize {
				s.data.Reset()
				return nil, fmt.Errorf("agentapi: event stream frame exceeds %d bytes", maxFrameSize)
			}

		default:
			// Other SSE fields (event:, id:, retry:) are not used by
			// the agent server and are ignored.
		}
	}
}

// Close tears down the channel. Outstanding Next calls unblock with an
// error.
func (s *EventStream) Close() error {
	return s.response.Body.Close()
}
