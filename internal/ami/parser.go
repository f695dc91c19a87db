package ami

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Parser reads an AMI byte stream and emits Events
type Parser struct {
	r *bufio.Reader
}

// NewParser creates a Parser that reads from r
func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{r: br}
	}
	return &Parser{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next reads the next message. It returns io.EOF once the stream is
// exhausted; a trailing block without a terminating blank line is still
// returned before io.EOF.
func (p *Parser) Next() (Event, error) {
	var headers []header

	for {
		line, err := p.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		atEOF := err != nil

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(headers) > 0 {
				return Event{headers: headers}, nil
			}
			if atEOF {
				return Event{}, io.EOF
			}
			continue
		}

		key, value, found := strings.Cut(line, ":")
		switch {
		case !found && len(headers) == 0:
			// banner ("Asterisk Call Manager/x.y") or other noise between blocks
		case !found:
			headers = append(headers, header{Value: line})
		default:
			headers = append(headers, header{Key: strings.TrimSpace(key), Value: strings.TrimPrefix(value, " ")})
		}

		if atEOF {
			if len(headers) > 0 {
				return Event{headers: headers}, nil
			}
			return Event{}, io.EOF
		}
	}
}

// ParseAll reads every message until EOF
func (p *Parser) ParseAll() ([]Event, error) {
	var events []Event
	for {
		evt, err := p.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, evt)
	}
}

// ParseBytes parses all messages in data
func ParseBytes(data []byte) []Event {
	events, _ := NewParser(bytes.NewReader(data)).ParseAll()
	return events
}

// encodeAction renders an action in wire format
func encodeAction(name, actionID string, fields []string) []byte {
	var b bytes.Buffer
	b.WriteString("Action: " + name + "\r\n")
	b.WriteString("ActionID: " + actionID + "\r\n")
	for i := 0; i+1 < len(fields); i += 2 {
		b.WriteString(fields[i] + ": " + fields[i+1] + "\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}
