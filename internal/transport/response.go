package transport

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// response is a parsed HTTP/1.1 response.
type response struct {
	Status  int
	Headers map[string]string
	Body    []byte
	raw     []byte
}

var headerSep = []byte("\r\n\r\n")

// parseResponse attempts to parse an accumulating buffer as a structurally
// complete HTTP/1.1 response. It returns (nil, nil) while the buffer is still
// incomplete and an error only for data that can never become a valid
// response. Completion before EOF requires a Content-Length; responses
// without one are finalized by parseAtEOF when the peer closes.
func parseResponse(buf []byte) (*response, error) {
	resp, length, haveLength, err := parseHead(buf)
	if err != nil || resp == nil {
		return nil, err
	}
	if !haveLength || len(resp.Body) < length {
		return nil, nil
	}
	resp.Body = resp.Body[:length]
	return resp, nil
}

// parseAtEOF finalizes a response once the peer has closed the connection.
func parseAtEOF(buf []byte) (*response, error) {
	resp, length, haveLength, err := parseHead(buf)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("parse response: connection closed before headers completed (%d bytes)", len(buf))
	}
	if haveLength {
		if len(resp.Body) < length {
			return nil, fmt.Errorf("parse response: connection closed mid-body (%d of %d bytes)", len(resp.Body), length)
		}
		resp.Body = resp.Body[:length]
	}
	return resp, nil
}

// parseHead parses the status line and headers. A nil response with nil error
// means the header block is not yet complete.
func parseHead(buf []byte) (resp *response, length int, haveLength bool, err error) {
	idx := bytes.Index(buf, headerSep)
	if idx < 0 {
		return nil, 0, false, nil
	}
	head := buf[:idx]
	body := buf[idx+len(headerSep):]

	lines := strings.Split(string(head), "\r\n")
	status, err := parseStatusLine(lines[0])
	if err != nil {
		return nil, 0, false, err
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, 0, false, fmt.Errorf("parse response: malformed header line %q", line)
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	if v, ok := headers["content-length"]; ok {
		length, err = strconv.Atoi(v)
		if err != nil || length < 0 {
			return nil, 0, false, fmt.Errorf("parse response: bad content-length %q", v)
		}
		haveLength = true
	}

	return &response{Status: status, Headers: headers, Body: body, raw: buf}, length, haveLength, nil
}

func parseStatusLine(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/1.") {
		return 0, fmt.Errorf("parse response: malformed status line %q", line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil || status < 100 || status > 599 {
		return 0, fmt.Errorf("parse response: bad status in %q", line)
	}
	return status, nil
}
