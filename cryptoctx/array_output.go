package cryptoctx

import "sync"

// ArrayOutput is a drain-once byte sequence produced by the host.
// The guest learns the remaining length, then pulls the bytes out in
// one or more calls; each byte is delivered exactly once.
type ArrayOutput struct {
	data   []byte
	pos    int
	mu     sync.Mutex
	closed bool
}

// NewArrayOutput takes ownership of data; the caller must not modify it.
// The bytes are zeroed when the output is dropped.
func NewArrayOutput(data []byte) *ArrayOutput {
	return &ArrayOutput{data: data}
}

// Drop zeroes and discards the data.
func (a *ArrayOutput) Drop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.data)
	a.data = nil
	a.pos = 0
	a.closed = true
}

// pull copies up to len(buf) remaining bytes into buf and advances the
// cursor. An exhausted output pulls zero bytes; ok is false once the
// output has been dropped.
func (a *ArrayOutput) pull(buf []byte) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, false
	}
	n := copy(buf, a.data[a.pos:])
	a.pos += n
	return n, true
}

func (a *ArrayOutput) remaining() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, false
	}
	return len(a.data) - a.pos, true
}
