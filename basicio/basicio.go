// Package basicio implements the deterministic, indented "basic_io"
// textual stanza format used for every canonical serialization in the
// core (spec.md §6.2): rosters, revisions, cert signable text, and
// conflict files all reduce to a sequence of stanzas of `key value` (or
// `key "quoted value"`) lines.
//
// Grounded on the teacher's journal.Journal: a thin io.Writer wrapper
// whose methods append formatted lines; instead of panicking, the Writer
// records the first I/O error, stops writing, and reports it via Err,
// generalized from p4 journal records to generic stanzas. Parsing is
// position-sensitive, as required by §6.3's conflict-file grammar.
package basicio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Writer accumulates basic_io stanzas into an underlying io.Writer.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Err returns the first write error encountered, if any.
func (bw *Writer) Err() error { return bw.err }

func (bw *Writer) printf(format string, args ...interface{}) {
	if bw.err != nil {
		return
	}
	_, err := fmt.Fprintf(bw.w, format, args...)
	if err != nil {
		bw.err = err
	}
}

// Stanza writes a bare `name` header line, e.g. `conflict duplicate_name`.
func (bw *Writer) Stanza(name string) { bw.printf("%s\n", name) }

// Field writes `  key "value"` with the value quote-escaped.
func (bw *Writer) Field(key, value string) {
	bw.printf("  %s %s\n", key, Quote(value))
}

// FieldInt writes `  key value` with a bare (unquoted) integer.
func (bw *Writer) FieldInt(key string, value int64) {
	bw.printf("  %s %d\n", key, value)
}

// FieldHex writes `  key [hex]` with a bracketed hex-encoded identifier,
// the format the source uses for hash-valued fields.
func (bw *Writer) FieldHex(key string, b []byte) {
	bw.printf("  %s [%x]\n", key, b)
}

// Blank writes a blank line, the stanza separator.
func (bw *Writer) Blank() { bw.printf("\n") }

// Flag writes a bare `  key` marker line with no value, used for
// boolean resolution markers like `resolved_drop_left`.
func (bw *Writer) Flag(key string) { bw.printf("  %s\n", key) }

// Quote escapes a string for embedding in a basic_io value.
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Unquote reverses Quote, stripping surrounding quotes and un-escaping.
func Unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", errors.Errorf("basicio: not a quoted value: %q", s)
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String(), nil
}

// SortedStringPairs sorts a map's keys and returns them for deterministic
// iteration order, used by every canonical serializer that walks a map.
func SortedStringPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Line is one parsed basic_io line: either a stanza header (Key=="",
// IsHeader), a "  key value" field, or a bare "  key" flag marker
// (IsFlag).
type Line struct {
	IsHeader bool
	Header   string
	Key      string
	Value    string
	IsHex    bool
	HexBytes []byte
	IsInt    bool
	IntValue int64
	IsBlank  bool
	IsFlag   bool
}

// Parser reads basic_io text back into Lines, position-sensitively:
// callers (conflictio in particular) must consume Lines in the order
// produced and report a precise error citing the offending line.
type Parser struct {
	scanner *bufio.Scanner
	lineNo  int
	peeked  *Line
	peekErr error
}

// NewParser wraps r.
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: bufio.NewScanner(r)}
}

// Next returns the next parsed Line, or io.EOF.
func (p *Parser) Next() (Line, error) {
	if p.peeked != nil {
		l := *p.peeked
		p.peeked = nil
		return l, p.peekErr
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return Line{}, err
		}
		return Line{}, io.EOF
	}
	p.lineNo++
	raw := p.scanner.Text()
	if strings.TrimSpace(raw) == "" {
		return Line{IsBlank: true}, nil
	}
	if !strings.HasPrefix(raw, "  ") {
		return Line{IsHeader: true, Header: strings.TrimSpace(raw)}, nil
	}
	trimmed := strings.TrimSpace(raw)
	sp := strings.IndexByte(trimmed, ' ')
	if sp < 0 {
		return Line{Key: trimmed, IsFlag: true}, nil
	}
	key := trimmed[:sp]
	valueText := strings.TrimSpace(trimmed[sp+1:])
	if strings.HasPrefix(valueText, "[") && strings.HasSuffix(valueText, "]") {
		hexStr := valueText[1 : len(valueText)-1]
		b, err := hexDecode(hexStr)
		if err != nil {
			return Line{}, errors.Wrapf(err, "basicio: bad hex at line %d", p.lineNo)
		}
		return Line{Key: key, IsHex: true, HexBytes: b}, nil
	}
	if len(valueText) == 0 || valueText[0] != '"' {
		// bare, unquoted value: FieldInt's output. Any other unquoted
		// token is rejected as a parse error.
		n, err := strconv.ParseInt(valueText, 10, 64)
		if err != nil {
			return Line{}, errors.Wrapf(err, "basicio: bad bare value at line %d: %q", p.lineNo, raw)
		}
		return Line{Key: key, IsInt: true, IntValue: n, Value: valueText}, nil
	}
	val, err := Unquote(valueText)
	if err != nil {
		return Line{}, errors.Wrapf(err, "basicio: line %d", p.lineNo)
	}
	return Line{Key: key, Value: val}, nil
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.Errorf("odd-length hex %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// LineNo returns the 1-based line number of the most recently returned
// Line, for precise error messages (§6.3).
func (p *Parser) LineNo() int { return p.lineNo }

// Push pushes a line back so the next Next() call returns it again —
// one token of lookahead, for callers that must decide where a
// variable-length run of fields ends (ConflictIO's optional resolution
// lines, terminated by the stanza's blank separator).
func (p *Parser) Push(l Line, err error) {
	p.peeked = &l
	p.peekErr = err
}

// RenderToString is a convenience for tests and hash computation: applies
// fn to a fresh Writer over a buffer and returns the result.
func RenderToString(fn func(*Writer)) string {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	fn(w)
	return buf.String()
}
