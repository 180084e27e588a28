// Package procio runs child processes for the harness and bounds the
// memory spent on their output.
package procio

import "fmt"

// Capture limits: the first headLen bytes are kept verbatim, the last
// tailLen bytes are retained in a rolling window, and everything in
// between is replaced by a skip marker.
const (
	headLen = 160 * 1024
	tailLen = 256 * 1024
)

// CaptureBuffer collects one output stream of a child process. It is a
// two-state machine: full until the combined limit is exceeded, then
// abbreviated with a fixed head and a ring holding the newest tail
// bytes at its end.
type CaptureBuffer struct {
	full        []byte
	head        []byte
	tail        []byte
	skipped     int
	abbreviated bool
}

// Write implements io.Writer. It never fails.
func (b *CaptureBuffer) Write(p []byte) (int, error) {
	if !b.abbreviated {
		b.full = append(b.full, p...)
		if len(b.full) <= headLen+tailLen {
			return len(p), nil
		}
		total := len(b.full)
		b.head = append([]byte(nil), b.full[:headLen]...)
		b.tail = append([]byte(nil), b.full[total-tailLen:]...)
		b.skipped = total - headLen - tailLen
		b.full = nil
		b.abbreviated = true
		return len(p), nil
	}

	b.skipped += len(p)
	if len(p) <= tailLen {
		// Shift the ring left and place the new bytes at the end.
		copy(b.tail, b.tail[len(p):])
		copy(b.tail[tailLen-len(p):], p)
	} else {
		copy(b.tail, p[len(p)-tailLen:])
	}
	return len(p), nil
}

// Bytes renders the captured stream, inserting the skip marker when
// the buffer had to abbreviate.
func (b *CaptureBuffer) Bytes() []byte {
	if !b.abbreviated {
		return b.full
	}
	out := make([]byte, 0, len(b.head)+len(b.tail)+64)
	out = append(out, b.head...)
	out = append(out, fmt.Sprintf("\n\n<<<<<< SKIPPED %d BYTES >>>>>>\n\n", b.skipped)...)
	out = append(out, b.tail...)
	return out
}

func (b *CaptureBuffer) String() string { return string(b.Bytes()) }
