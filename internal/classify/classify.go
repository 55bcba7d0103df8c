// Package classify decides whether a filesystem entry is a text file eligible
// for line-ending conversion.
//
// Only a bounded prefix of each file is inspected. A NUL byte in the sample, or
// a sample that is not valid UTF-8, marks the file as binary.
package classify

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/harrison/lf/internal/models"
)

// DefaultSampleSize is the number of leading bytes inspected per file.
const DefaultSampleSize = 8192

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNotRegular is reported for FIFOs, sockets, devices and other special files.
var ErrNotRegular = errors.New("not a regular file")

// Classifier implements the text/binary decision using a fixed-size byte sample.
type Classifier struct {
	SampleSize int // Number of bytes to sample for binary detection
}

// New creates a Classifier with the given sample size.
// A non-positive size falls back to DefaultSampleSize.
func New(sampleSize int) *Classifier {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Classifier{SampleSize: sampleSize}
}

// Classify inspects path without following a final symlink and, for regular
// files, reads at most SampleSize bytes. It always returns a verdict.
func (c *Classifier) Classify(path string) models.Classification {
	info, err := os.Lstat(path)
	if err != nil {
		return models.Classification{Kind: models.KindUnreadable, Err: err}
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		return models.Classification{Kind: models.KindDirectory}
	case mode&os.ModeSymlink != 0:
		return models.Classification{Kind: models.KindSymlink}
	case !mode.IsRegular():
		return models.Classification{Kind: models.KindUnreadable, Err: fmt.Errorf("%s: %w", path, ErrNotRegular)}
	}

	sample, truncated, err := c.readSample(path)
	if err != nil {
		return models.Classification{Kind: models.KindUnreadable, Err: err}
	}

	return models.Classification{Kind: c.ClassifySample(sample, truncated)}
}

// readSample reads up to SampleSize bytes. truncated reports whether the file
// had more data than the sample holds.
func (c *Classifier) readSample(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	// One extra byte tells a file of exactly SampleSize bytes apart from a longer one.
	buf := make([]byte, c.sampleSize()+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, false, fmt.Errorf("read sample: %w", err)
	}
	if n > c.sampleSize() {
		return buf[:c.sampleSize()], true, nil
	}
	return buf[:n], false, nil
}

// ClassifySample classifies content that has already been read. Only the first
// SampleSize bytes of sample are considered; truncated must be true when the
// sample is a strict prefix of the file so a multi-byte rune split at the cut
// point is not mistaken for invalid text.
func (c *Classifier) ClassifySample(sample []byte, truncated bool) models.Kind {
	if size := c.sampleSize(); len(sample) > size {
		sample = sample[:size]
		truncated = true
	}

	if bytes.IndexByte(sample, 0) >= 0 {
		return models.KindBinaryFile
	}

	sample = bytes.TrimPrefix(sample, utf8BOM)
	if truncated {
		sample = trimPartialRune(sample)
	}
	if !utf8.Valid(sample) {
		return models.KindBinaryFile
	}
	return models.KindTextFile
}

func (c *Classifier) sampleSize() int {
	if c.SampleSize <= 0 {
		return DefaultSampleSize
	}
	return c.SampleSize
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	// A rune is at most 4 bytes, so only the last 3 can start an unfinished one.
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		c := b[len(b)-i]
		if !utf8.RuneStart(c) {
			continue
		}
		if !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i]
		}
		break
	}
	return b
}
