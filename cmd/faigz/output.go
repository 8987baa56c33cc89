package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// output is a buffered destination for fetched records, optionally zstd
// compressed.
type output struct {
	w       *bufio.Writer
	encoder *zstd.Encoder
	file    *os.File
}

// encoderLevel maps --level 1..3 to a zstd speed.
func encoderLevel(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

// newOutput opens path for writing ("-" or "" is stdout). compression is
// "none" or "zstd".
func newOutput(path, compression string, level int) (*output, error) {
	o := &output{}
	var dst io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output: %w", err)
		}
		o.file = f
		dst = f
	}

	switch strings.ToLower(compression) {
	case "", "none":
	case "zstd":
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(encoderLevel(level)))
		if err != nil {
			o.closeFile()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		o.encoder = enc
		dst = enc
	default:
		o.closeFile()
		return nil, fmt.Errorf("unknown compression %q (use none or zstd)", compression)
	}

	o.w = bufio.NewWriterSize(dst, 256*1024)
	return o, nil
}

func (o *output) closeFile() {
	if o.file != nil {
		o.file.Close()
	}
}

// writeRecord writes one FASTA record, or a FASTQ record when fastq is set,
// wrapping lines at width (0 disables wrapping). Write errors surface in Close.
func (o *output) writeRecord(name, seq, qual string, width int, fastq bool) {
	marker := ">"
	if fastq {
		marker = "@"
	}
	o.w.WriteString(marker + name + "\n")
	writeWrapped(o.w, seq, width)
	if fastq {
		o.w.WriteString("+\n")
		writeWrapped(o.w, qual, width)
	}
}

func writeWrapped(w *bufio.Writer, s string, width int) {
	if width <= 0 {
		w.WriteString(s)
		w.WriteByte('\n')
		return
	}
	for len(s) > 0 {
		n := min(width, len(s))
		w.WriteString(s[:n])
		w.WriteByte('\n')
		s = s[n:]
	}
}

// Close flushes buffered data, finishes the zstd frame and closes the file.
func (o *output) Close() error {
	if err := o.w.Flush(); err != nil {
		o.closeFile()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if o.encoder != nil {
		if err := o.encoder.Close(); err != nil {
			o.closeFile()
			return fmt.Errorf("failed to finish zstd stream: %w", err)
		}
	}
	if o.file != nil {
		return o.file.Close()
	}
	return nil
}
