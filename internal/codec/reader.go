package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrame bounds a single frame. Larger frames are skipped.
const DefaultMaxFrame = 1 << 20

var ErrFrameTooLarge = errors.New("codec: frame exceeds size limit")

// FrameReader splits a byte stream into terminator-delimited frames.
// It is not safe for concurrent use.
type FrameReader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

func NewFrameReader(r io.Reader, maxFrame int) *FrameReader {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024), max: maxFrame}
}

// Next returns the next frame without its terminator. The returned slice is
// only valid until the following call.
//
// An oversized frame is discarded up to its terminator and reported as
// ErrFrameTooLarge; the reader stays usable. A trailing unterminated frame
// at EOF is returned as-is, followed by io.EOF on the next call.
func (f *FrameReader) Next() ([]byte, error) {
	f.buf = f.buf[:0]
	oversized := false
	for {
		chunk, err := f.r.ReadSlice(Terminator)
		if !oversized {
			if len(f.buf)+len(chunk) > f.max+1 {
				oversized = true
				f.buf = f.buf[:0]
			} else {
				f.buf = append(f.buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if oversized {
				return nil, fmt.Errorf("%w (limit %d bytes)", ErrFrameTooLarge, f.max)
			}
			return f.buf[:len(f.buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if oversized {
				return nil, fmt.Errorf("%w (limit %d bytes)", ErrFrameTooLarge, f.max)
			}
			if len(f.buf) > 0 {
				return f.buf, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}
