package ami

import (
	"bufio"
	"io"
	"strings"
)

// maxLine bounds a single AMI line. VarSet values can be long.
const maxLine = 64 * 1024

// Parser splits an AMI byte stream into Events. Blocks are separated by a
// blank line; lines without ": " outside a block (the banner) are dropped.
type Parser struct {
	scanner *bufio.Scanner
}

func NewParser(r io.Reader) *Parser {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLine)
	return &Parser{scanner: s}
}

// Next returns the next event, or false once the stream ends.
func (p *Parser) Next() (Event, bool) {
	var headers []header

	for p.scanner.Scan() {
		line := strings.TrimRight(p.scanner.Text(), "\r")

		if line == "" {
			if len(headers) > 0 {
				return Event{headers: headers}, true
			}
			continue
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			if len(headers) == 0 {
				continue
			}
			// "Key:" with an empty value is legal AMI.
			if k, found := strings.CutSuffix(line, ":"); found {
				headers = append(headers, header{Key: k})
			}
			continue
		}
		headers = append(headers, header{Key: key, Value: value})
	}

	if len(headers) > 0 {
		return Event{headers: headers}, true
	}
	return Event{}, false
}

// Err returns the read error that ended the stream, if any.
func (p *Parser) Err() error {
	return p.scanner.Err()
}

func (p *Parser) ParseAll() []Event {
	var events []Event
	for {
		evt, ok := p.Next()
		if !ok {
			return events
		}
		events = append(events, evt)
	}
}

// ParseBytes parses every event in data.
func ParseBytes(data []byte) []Event {
	return NewParser(strings.NewReader(string(data))).ParseAll()
}
