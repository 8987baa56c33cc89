package faidx

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

const (
	lineBufferSize = 64 * 1024
	maxHeaderKeep  = lineBufferSize
)

// line is one physical line of the decompressed stream. Lines of any
// length are measured; only the first maxHeaderKeep bytes are kept.
type line struct {
	no   int
	text []byte // leading content bytes, terminator stripped
	n    int64  // content length
	size int64  // content plus terminator
	eol  bool
}

type lineReader struct {
	r       *bufio.Reader
	off     int64
	no      int
	keep    []byte
	pending *line
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		r:    bufio.NewReaderSize(r, lineBufferSize),
		keep: make([]byte, 0, maxHeaderKeep),
	}
}

func (lr *lineReader) unread(l line) {
	lr.pending = &l
}

func (lr *lineReader) next() (line, error) {
	if lr.pending != nil {
		l := *lr.pending
		lr.pending = nil
		return l, nil
	}

	var l line
	lr.keep = lr.keep[:0]
	var prev, last byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		l.size += int64(len(chunk))
		if room := maxHeaderKeep - len(lr.keep); room > 0 {
			lr.keep = append(lr.keep, chunk[:min(room, len(chunk))]...)
		}
		switch k := len(chunk); {
		case k >= 2:
			prev, last = chunk[k-2], chunk[k-1]
		case k == 1:
			prev, last = last, chunk[0]
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			if l.size == 0 {
				return line{}, io.EOF
			}
			break
		}
		if err != nil {
			return line{}, err
		}
		l.eol = true
		break
	}

	l.n = l.size
	if l.eol {
		l.n--
		if l.n > 0 && prev == '\r' {
			l.n--
		}
	} else if last == '\r' {
		l.n--
	}
	l.text = lr.keep
	if int64(len(l.text)) > l.n {
		l.text = l.text[:l.n]
	}

	lr.off += l.size
	lr.no++
	l.no = lr.no
	return l, nil
}

// builder scans a decompressed stream into a Table.
type builder struct {
	path  string
	lr    *lineReader
	table *Table

	cur       *Record
	curLine   int
	irregular int // first line of cur shorter than LineBases, 0 if none
	blank     int // first blank line of cur, 0 if none
}

// Build scans a decompressed FASTA or FASTQ stream and returns its table.
// FormatAuto picks the format from the first header.
func Build(r io.Reader, format Format) (*Table, error) {
	return buildTable(r, "", format)
}

func buildTable(r io.Reader, path string, format Format) (*Table, error) {
	b := &builder{path: path, lr: newLineReader(r)}

	if format == FormatAuto {
		detected, err := b.detect()
		if err != nil {
			return nil, err
		}
		format = detected
	}
	b.table = newTable(format)

	var err error
	if format == FormatFASTQ {
		err = b.scanFASTQ()
	} else {
		err = b.scanFASTA()
	}
	if err != nil {
		return nil, err
	}
	return b.table, nil
}

func (b *builder) formatError(line int, reason string, args ...any) error {
	fe := &FormatError{Path: b.path, Line: line, Reason: fmt.Sprintf(reason, args...)}
	if b.cur != nil {
		fe.Record = b.cur.Name
	}
	return fe
}

func (b *builder) readErr(err error) error {
	return fmt.Errorf("failed to read %s at line %d: %w", b.pathOrInput(), b.lr.no+1, err)
}

func (b *builder) pathOrInput() string {
	if b.path == "" {
		return "input"
	}
	return b.path
}

// detect peeks at the first non-blank line.
func (b *builder) detect() (Format, error) {
	for {
		l, err := b.lr.next()
		if err == io.EOF {
			return FormatFASTA, nil
		}
		if err != nil {
			return FormatAuto, b.readErr(err)
		}
		if l.n == 0 {
			continue
		}
		b.lr.unread(l)
		switch l.text[0] {
		case '>':
			return FormatFASTA, nil
		case '@':
			return FormatFASTQ, nil
		}
		return FormatAuto, b.formatError(l.no, "missing record header")
	}
}

// begin starts a record from a header line.
func (b *builder) begin(l line) error {
	fields := bytes.Fields(l.text[1:])
	if len(fields) == 0 || (len(l.text) > 1 && isSpace(l.text[1])) {
		b.cur = nil
		return b.formatError(l.no, "empty record name")
	}
	b.cur = &Record{Name: string(fields[0]), Offset: b.lr.off}
	b.curLine = l.no
	b.irregular = 0
	b.blank = 0
	return nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\v' || c == '\f'
}

// extend adds one sequence line to the current record, enforcing uniform
// wrapping: only the last line may be shorter than LineBases.
func (b *builder) extend(l line) error {
	rec := b.cur
	if b.blank != 0 {
		return b.formatError(b.blank, "blank line inside sequence")
	}
	if b.irregular != 0 {
		return b.formatError(b.irregular, "line length differs from line %d; only the last line may be shorter", b.curLine+1)
	}

	if rec.Length == 0 {
		rec.LineBases = l.n
		rec.LineBytes = l.size
		if !l.eol {
			rec.LineBytes = l.n + 1
		}
	} else {
		if l.n > rec.LineBases {
			return b.formatError(l.no, "line has %d bases, expected at most %d", l.n, rec.LineBases)
		}
		if l.n < rec.LineBases || !l.eol || l.size != rec.LineBytes {
			b.irregular = l.no
		}
	}
	rec.Length += l.n
	return nil
}

func (b *builder) finish() error {
	if b.cur == nil {
		return nil
	}
	if !b.table.add(*b.cur) {
		return b.formatError(b.curLine, "duplicate record name")
	}
	b.cur = nil
	return nil
}

func (b *builder) scanFASTA() error {
	for {
		l, err := b.lr.next()
		if err == io.EOF {
			return b.finish()
		}
		if err != nil {
			return b.readErr(err)
		}

		switch {
		case l.n == 0:
			switch {
			case b.cur == nil:
			case b.cur.Length == 0:
				// Sequence starts after the blank lines.
				b.cur.Offset = b.lr.off
			case b.blank == 0:
				b.blank = l.no
			}
		case l.text[0] == '>':
			if err := b.finish(); err != nil {
				return err
			}
			if err := b.begin(l); err != nil {
				return err
			}
		case b.cur == nil:
			return b.formatError(l.no, "sequence data before first header")
		default:
			if err := b.extend(l); err != nil {
				return err
			}
		}
	}
}

func (b *builder) scanFASTQ() error {
	for {
		l, err := b.lr.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return b.readErr(err)
		}
		if l.n == 0 {
			continue
		}
		if l.text[0] != '@' {
			return b.formatError(l.no, "expected '@' record header")
		}
		if err := b.begin(l); err != nil {
			return err
		}
		if err := b.fastqRecord(); err != nil {
			return err
		}
		if err := b.finish(); err != nil {
			return err
		}
	}
}

// fastqRecord reads the sequence, separator and quality lines of the
// current record.
func (b *builder) fastqRecord() error {
	rec := b.cur
	for {
		l, err := b.lr.next()
		if err == io.EOF {
			return b.formatError(b.lr.no, "truncated record: missing '+' line")
		}
		if err != nil {
			return b.readErr(err)
		}
		if l.n == 0 {
			return b.formatError(l.no, "blank line inside sequence")
		}
		if l.text[0] == '+' {
			break
		}
		if err := b.extend(l); err != nil {
			return err
		}
	}

	rec.QualityOffset = b.lr.off
	rec.QualityLineBytes = rec.LineBytes

	var seen int64
	for seen < rec.Length {
		l, err := b.lr.next()
		if err == io.EOF {
			return b.formatError(b.lr.no, "truncated record: %d of %d quality values", seen, rec.Length)
		}
		if err != nil {
			return b.readErr(err)
		}
		want := min(rec.LineBases, rec.Length-seen)
		if l.n != want {
			return b.formatError(l.no, "quality line has %d values, expected %d", l.n, want)
		}
		seen += l.n
		if seen < rec.Length && l.size != rec.LineBytes {
			return b.formatError(l.no, "quality line wrapping differs from sequence")
		}
	}
	return nil
}
