package faidx

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Format identifies the record layout of a source.
type Format int

const (
	FormatAuto Format = iota
	FormatFASTA
	FormatFASTQ
)

func (f Format) String() string {
	switch f {
	case FormatFASTA:
		return "fasta"
	case FormatFASTQ:
		return "fastq"
	default:
		return "auto"
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "fasta", "fa":
		return FormatFASTA, nil
	case "fastq", "fq":
		return FormatFASTQ, nil
	}
	return FormatAuto, fmt.Errorf("unknown format %q", s)
}

// Record describes where a named sequence lives in the decompressed stream.
type Record struct {
	Name      string
	Length    int64 // bases
	Offset    int64 // byte offset of the first base
	LineBases int64 // bases per full line
	LineBytes int64 // bytes per full line, terminator included

	// Quality layout, FASTQ only. QualityOffset is zero for FASTA.
	QualityOffset    int64
	QualityLineBytes int64
}

// bytePos returns the stream position of base p.
func (r Record) bytePos(p int64) int64 {
	return r.Offset + (p/r.LineBases)*r.LineBytes + p%r.LineBases
}

// Table is the ordered, immutable set of records of one source.
type Table struct {
	format  Format
	records []Record
	byName  map[string]int
}

func newTable(format Format) *Table {
	return &Table{format: format, byName: make(map[string]int)}
}

// add appends a record and reports false if the name is taken.
func (t *Table) add(rec Record) bool {
	if _, dup := t.byName[rec.Name]; dup {
		return false
	}
	t.byName[rec.Name] = len(t.records)
	t.records = append(t.records, rec)
	return true
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// At returns the i-th record in source order.
func (t *Table) At(i int) (Record, bool) {
	if i < 0 || i >= len(t.records) {
		return Record{}, false
	}
	return t.records[i], true
}

// Lookup returns the record with the given name.
func (t *Table) Lookup(name string) (Record, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Record{}, false
	}
	return t.records[i], true
}

// Names returns record names in source order.
func (t *Table) Names() []string {
	names := make([]string, len(t.records))
	for i, r := range t.records {
		names[i] = r.Name
	}
	return names
}

// Format returns the layout the table was built for.
func (t *Table) Format() Format {
	return t.format
}

// WriteTo writes the table as a samtools-compatible .fai file.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	line := make([]byte, 0, 128)
	for _, r := range t.records {
		line = append(line[:0], r.Name...)
		for _, v := range []int64{r.Length, r.Offset, r.LineBases, r.LineBytes} {
			line = append(line, '\t')
			line = strconv.AppendInt(line, v, 10)
		}
		if t.format == FormatFASTQ {
			line = append(line, '\t')
			line = strconv.AppendInt(line, r.QualityOffset, 10)
		}
		line = append(line, '\n')
		n, err := bw.Write(line)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// Digest returns the xxhash of the table's .fai encoding. Equal tables have
// equal digests.
func (t *Table) Digest() uint64 {
	h := xxhash.New()
	_, _ = t.WriteTo(h)
	return h.Sum64()
}

// ReadTable parses a .fai file. Five columns describe FASTA records and six
// describe FASTQ records; mixing the two is an error.
func ReadTable(r io.Reader) (*Table, error) {
	t := newTable(FormatAuto)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")

		var format Format
		switch len(fields) {
		case 5:
			format = FormatFASTA
		case 6:
			format = FormatFASTQ
		default:
			return nil, fmt.Errorf("line %d: expected 5 or 6 columns, got %d", lineNo, len(fields))
		}
		if t.format == FormatAuto {
			t.format = format
		} else if t.format != format {
			return nil, fmt.Errorf("line %d: mixed FASTA and FASTQ entries", lineNo)
		}

		var nums [5]int64
		for i, f := range fields[1:] {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("line %d: bad column %d %q", lineNo, i+2, f)
			}
			nums[i] = v
		}
		rec := Record{
			Name:      fields[0],
			Length:    nums[0],
			Offset:    nums[1],
			LineBases: nums[2],
			LineBytes: nums[3],
		}
		if rec.Name == "" || (rec.Length > 0 && (rec.LineBases <= 0 || rec.LineBytes <= rec.LineBases)) {
			return nil, fmt.Errorf("line %d: invalid record %q", lineNo, rec.Name)
		}
		if format == FormatFASTQ {
			rec.QualityOffset = nums[4]
			rec.QualityLineBytes = rec.LineBytes
		}
		if !t.add(rec) {
			return nil, fmt.Errorf("line %d: duplicate record %q", lineNo, rec.Name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if t.format == FormatAuto {
		t.format = FormatFASTA
	}
	return t, nil
}

// parseTable is ReadTable over an in-memory .fai file.
func parseTable(data []byte) (*Table, error) {
	return ReadTable(bytes.NewReader(data))
}
