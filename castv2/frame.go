package castv2

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// maxFrameSize is the sanity limit SPEC_FULL.md §4.1 recommends even
// though the wire format imposes no limit of its own.
const maxFrameSize = 64 * 1024 * 1024

// frameLengthSize is the width of the big-endian length header.
const frameLengthSize = 4

// frameWriter serializes writes of length-prefixed frames onto a single
// io.Writer so concurrent senders never interleave partial frames. This
// mirrors the single mutex-guarded write path the teacher protocol uses
// for its own length-prefixed frames (Protocol.sendDirect), generalized
// here to its own type so the reader and heartbeat/writer paths can share
// one lock without depending on the rest of the Channel.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

// WriteFrame emits a 4-byte big-endian length followed by exactly that
// many bytes of payload, atomically with respect to other writers.
func (f *frameWriter) WriteFrame(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var lenBuf [frameLengthSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return &IOError{Op: "write frame length", Err: err}
	}
	if _, err := f.w.Write(payload); err != nil {
		return &IOError{Op: "write frame body", Err: err}
	}
	return nil
}

// readFrame blocks until exactly one length-prefixed frame has been read
// from r. A short read that hits EOF mid-frame is reported as a
// ErrProtocol-wrapped error, per SPEC_FULL.md §4.1.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [frameLengthSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, &IOError{Op: "read frame length", Err: err}
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds sanity limit %d", ErrProtocol, n, maxFrameSize)
	}

	payload := make([]byte, n)
	read, err := io.ReadFull(r, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: incomplete message: read %d of %d: %v", ErrProtocol, read, n, err)
	}
	return payload, nil
}
