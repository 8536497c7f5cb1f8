package fetcher

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	directivePrefix = "#EXTINF:"
	logoKey         = `tvg-logo="`
	groupKey        = `group-title="`
)

// ErrDecoding is matched by every DecodingError.
var ErrDecoding = errors.New("playlist is not valid UTF-8 text")

// DecodingError reports that playlist bytes could not be read as text.
type DecodingError struct {
	Offset int // byte offset of the first invalid sequence
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("%v (invalid byte at offset %d)", ErrDecoding, e.Offset)
}

func (e *DecodingError) Is(target error) bool { return target == ErrDecoding }

// Decode validates data as UTF-8 and returns it as text, without a leading BOM.
func Decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", &DecodingError{Offset: firstInvalid(data)}
	}
	return string(data), nil
}

func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// ParseBytes decodes data and parses it. The only error is a *DecodingError.
func ParseBytes(data []byte) ([]Record, error) {
	text, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}

// Parse returns the records of an M3U document in document order.
// Data lines without a preceding directive are skipped.
func Parse(text string) []Record {
	var records []Record
	_ = Each(text, func(r Record) error {
		records = append(records, r)
		return nil
	})
	return records
}

type lineKind int

const (
	lineIgnored lineKind = iota
	lineDirective
	lineData
)

func classify(line string) lineKind {
	switch {
	case line == "":
		return lineIgnored
	case strings.HasPrefix(line, directivePrefix):
		return lineDirective
	case strings.HasPrefix(line, "#"):
		return lineIgnored
	default:
		return lineData
	}
}

// pending holds what the last directive line captured.
type pending struct {
	name  string
	logo  *string
	group *string
	ok    bool
}

// Each streams the records of text to fn in document order. It returns the
// first error from fn and stops scanning; malformed syntax never errors.
func Each(text string, fn func(Record) error) error {
	scanner := bufio.NewScanner(strings.NewReader(text))
	// A single line can never exceed the document, so ErrTooLong cannot occur.
	maxSize := len(text) + 1
	if maxSize < 64*1024 {
		maxSize = 64 * 1024
	}
	scanner.Buffer(make([]byte, 0, 64*1024), maxSize)

	var cur pending
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch classify(line) {
		case lineDirective:
			cur = parseDirective(line)
		case lineData:
			if cur.ok {
				rec := Record{Name: cur.name, URL: line, Logo: cur.logo, Group: cur.group}
				if err := fn(rec); err != nil {
					return err
				}
			}
			cur = pending{}
		}
	}
	return scanner.Err()
}

// parseDirective extracts name, logo and group from an #EXTINF line.
// The name is whatever follows the last comma on the line, trimmed, and is
// always captured: an empty name after a trailing comma stays empty and a
// line without a comma names the record with the whole line. A comma inside
// a quoted attribute that comes after the real separator is misread as the
// boundary. That matches how these playlists are read elsewhere and is kept.
func parseDirective(line string) pending {
	p := pending{ok: true}
	p.name = strings.TrimSpace(line[strings.LastIndexByte(line, ',')+1:])
	if logo, ok := quotedAttr(line, logoKey); ok && logo != "" {
		p.logo = &logo
	}
	if raw, ok := quotedAttr(line, groupKey); ok {
		if g := topLevelGroup(raw); g != "" {
			p.group = &g
		}
	}
	return p
}

// quotedAttr returns the text between key and the next double quote.
func quotedAttr(line, key string) (string, bool) {
	i := strings.Index(line, key)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(key):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// topLevelGroup keeps the first ';' or '/' separated segment of a group title.
func topLevelGroup(raw string) string {
	if i := strings.IndexAny(raw, ";/"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}
