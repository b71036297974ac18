package transformer

import "bytes"

// feeder is the persistent io.Reader a mccp.Decompressor reads its
// post-prepend compressed bytes from (spec §4.6). Go's zlib.Reader wants
// a live io.Reader, but Receive only ever gets one []byte chunk at a
// time, so each Receive call while compression is active appends into
// this buffer instead of handing the decompressor a brand new source.
type feeder struct {
	buf bytes.Buffer
}

// errNeedMoreInput signals the zlib stream has consumed everything
// currently staged and must wait for the next Receive call — distinct
// from the wrapped io.ErrUnexpectedEOF the Decompressor returns for a
// genuine zlib stream-end marker (spec §4.6 "decompressor returns StreamEnd").
var errNeedMoreInput = &sentinelError{"mccp: no buffered input available yet"}

type sentinelError struct{ s string }

func (e *sentinelError) Error() string { return e.s }

func (f *feeder) Read(p []byte) (int, error) {
	if f.buf.Len() == 0 {
		return 0, errNeedMoreInput
	}
	return f.buf.Read(p)
}
