// Package lineending rewrites CRLF and lone CR line terminators to LF.
//
// Normalize is pure and total: it never fails, never re-scans its input and
// returns the input slice itself when there is nothing to change.
package lineending

import "bytes"

const (
	cr = '\r'
	lf = '\n'
)

// Normalize returns b with every CRLF pair collapsed to LF and every lone CR
// replaced by LF. changed is true iff the output differs from b.
//
// The scan is a single pass over b. A CR immediately followed by LF is dropped
// and the LF is copied; any other CR becomes LF. "\r\n\n" therefore yields
// "\n\n" and "\r\r\n" yields "\n\n".
func Normalize(b []byte) ([]byte, bool) {
	first := bytes.IndexByte(b, cr)
	if first < 0 {
		return b, false
	}

	out := make([]byte, first, len(b))
	copy(out, b[:first])

	for i := first; i < len(b); i++ {
		c := b[i]
		if c != cr {
			out = append(out, c)
			continue
		}
		if i+1 < len(b) && b[i+1] == lf {
			// CRLF: the LF is emitted on the next iteration
			continue
		}
		out = append(out, lf)
	}

	return out, true
}

// Stats counts the line terminators found in a byte sequence.
type Stats struct {
	CRLF int // CR immediately followed by LF
	CR   int // CR not followed by LF
	LF   int // LF not preceded by CR
}

// NeedsConversion returns true if any CR was seen
func (s Stats) NeedsConversion() bool {
	return s.CRLF > 0 || s.CR > 0
}

// Mixed returns true if more than one terminator style is present
func (s Stats) Mixed() bool {
	styles := 0
	for _, n := range []int{s.CRLF, s.CR, s.LF} {
		if n > 0 {
			styles++
		}
	}
	return styles > 1
}

// Count tallies line terminators in b in a single pass.
func Count(b []byte) Stats {
	var s Stats
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case cr:
			if i+1 < len(b) && b[i+1] == lf {
				s.CRLF++
				i++
			} else {
				s.CR++
			}
		case lf:
			s.LF++
		}
	}
	return s
}
