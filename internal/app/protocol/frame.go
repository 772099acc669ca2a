package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// minFrameBuffer is the smallest buffer bufio accepts.
const minFrameBuffer = 16

// FrameReader splits a byte stream into newline-delimited frames of bounded size.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader reads frames of at most maxFrameBytes bytes, newline included.
func NewFrameReader(r io.Reader, maxFrameBytes int) *FrameReader {
	if maxFrameBytes < minFrameBuffer {
		maxFrameBytes = minFrameBuffer
	}
	return &FrameReader{r: bufio.NewReaderSize(r, maxFrameBytes)}
}

// ReadFrame returns the next frame without its line terminator. A last line
// lacking a newline is still returned before io.EOF. A line over the size limit
// is consumed up to its newline and reported as ErrFrameTooLarge; reading may
// continue afterwards.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	line, err := f.r.ReadSlice('\n')
	switch {
	case err == nil:
		return cloneFrame(line), nil

	case errors.Is(err, bufio.ErrBufferFull):
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = f.r.ReadSlice('\n')
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrFrameTooLarge

	case errors.Is(err, io.EOF) && len(line) > 0:
		return cloneFrame(line), nil

	default:
		return nil, err
	}
}

// cloneFrame copies line out of the bufio buffer and drops the "\n" or "\r\n" suffix.
func cloneFrame(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return bytes.Clone(line)
}
