package exr

import (
	"errors"
	"io"
)

// memStream is an in-memory io.ReadWriteSeeker and io.ReaderAt over a byte
// slice, so the EXR library reads and writes without touching the filesystem.
// Writing past the end grows the slice; seeking past the end is allowed and
// the gap is zero-filled by the next write.
type memStream struct {
	buf []byte
	pos int64
}

func newMemStream(data []byte) *memStream {
	return &memStream{buf: data}
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("exr: negative offset")
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(m.buf))))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("exr: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("exr: negative position")
	}
	m.pos = abs
	return abs, nil
}

// Size is the number of bytes written so far.
func (m *memStream) Size() int64 { return int64(len(m.buf)) }

// Bytes returns the stream contents trimmed to their length.
func (m *memStream) Bytes() []byte {
	return m.buf[:len(m.buf):len(m.buf)]
}
