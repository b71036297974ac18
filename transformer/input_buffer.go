package transformer

// InputBuffer is an append-only outbound byte queue with a drain cursor
// (spec §2 "InputBuffer", §5 "drain handles mutate-on-drop"). Negotiation
// replies and MXP-triggered identify/auth strings are appended here by
// the Transformer; the stream adapter drains it to the socket after each
// receive call.
type InputBuffer struct {
	buf    []byte
	cursor int
}

// WriteInput appends bytes to the buffer (satisfies mxp.InputSink and
// ansicode.InputSink).
func (b *InputBuffer) WriteInput(p []byte) {
	b.buf = append(b.buf, p...)
}

// Len reports the number of undrained bytes.
func (b *InputBuffer) Len() int { return len(b.buf) - b.cursor }

// DrainHandle borrows the buffer's unread tail. The caller must call
// Advance as bytes are successfully written to the socket, then Close
// when done — Close compacts the buffer by discarding everything the
// cursor has passed, matching the "compact by copying the unread tail to
// the buffer front" guidance of spec §9 "Input buffer drain".
type DrainHandle struct {
	b    *InputBuffer
	pos  int
	done bool
}

// Drain returns a handle over the buffer's unread bytes, or nil if empty
// (spec §4.1 `drain_input() -> Option<DrainHandle>`).
func (b *InputBuffer) Drain() *DrainHandle {
	if b.Len() == 0 {
		return nil
	}
	return &DrainHandle{b: b, pos: b.cursor}
}

// Bytes returns the unread tail as of handle creation.
func (h *DrainHandle) Bytes() []byte { return h.b.buf[h.pos:] }

// Advance marks n bytes as successfully written.
func (h *DrainHandle) Advance(n int) { h.pos += n }

// Close commits the handle's progress and compacts the underlying buffer.
func (h *DrainHandle) Close() {
	if h.done {
		return
	}
	h.done = true
	h.b.cursor = h.pos
	if h.b.cursor >= len(h.b.buf) {
		h.b.buf = h.b.buf[:0]
		h.b.cursor = 0
		return
	}
	remaining := append([]byte(nil), h.b.buf[h.b.cursor:]...)
	h.b.buf = remaining
	h.b.cursor = 0
}
