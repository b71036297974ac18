// Package mccp implements on-the-fly MUD Client Compression Protocol
// decompression (spec §4.6, §9 "Decompressor state transitions").
//
// The engine is an explicit three-state tagged variant —
// Uncompressed/Compressed/Transitioning — rather than a shared mutable
// zlib handle, following the teacher's preference for data-carrying enums
// over embedded mutable state (network/telnet.go's TelnetEventKind +
// payload fields). Go's compress/zlib.Reader cannot be rewound or fed a
// new underlying source once constructed (unlike flate2::Decompress,
// which the original Rust core resets in place), so a compression restart
// here rebuilds the zlib.Reader from scratch around a fresh io.Reader
// chain instead of calling a Reset method.
package mccp

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

type state int

const (
	stateUncompressed state = iota
	stateCompressed
	stateTransitioning
)

// Decompressor splices a possibly-mid-stream switch from plain bytes to
// zlib-compressed bytes, including any bytes already read past the
// compression switchpoint in the same read chunk (spec §4.6, §5 ordering
// guarantee 3).
type Decompressor struct {
	st     state
	source io.Reader // the underlying socket byte source, supplied by the caller on each transition
	plain  *bytes.Buffer
	zr     io.ReadCloser
}

// NewDecompressor returns a decompressor starting in plain (uncompressed) mode.
func NewDecompressor() *Decompressor {
	return &Decompressor{st: stateUncompressed, plain: new(bytes.Buffer)}
}

// Active reports whether decompression is currently switched on.
func (d *Decompressor) Active() bool { return d.st == stateCompressed }

// FeedPlain appends bytes to the plain-mode staging buffer. Call this with
// the raw bytes read off the socket while Active() is false.
func (d *Decompressor) FeedPlain(b []byte) {
	d.plain.Write(b)
}

// ReadPlain drains up to len(out) plain bytes staged by FeedPlain.
func (d *Decompressor) ReadPlain(out []byte) int {
	return copy(out, d.plain.Next(len(out)))
}

// PlainLen reports how many staged plain bytes remain.
func (d *Decompressor) PlainLen() int { return d.plain.Len() }

// StartV2 begins MCCP2-style decompression: the server's
// "IAC SB COMPRESS2 IAC SE" has just been fully consumed, and any bytes
// already read past that marker in the same read chunk are passed as
// prepend — they must be fed into the decompressor ahead of any future
// socket reads (spec §4.6, §9).
func (d *Decompressor) StartV2(prepend []byte, source io.Reader) error {
	return d.start(prepend, source)
}

// StartV1 begins MCCP1-style decompression: the marker is
// "IAC SB COMPRESS WILL SE", after which zlib data begins immediately.
func (d *Decompressor) StartV1(prepend []byte, source io.Reader) error {
	return d.start(prepend, source)
}

func (d *Decompressor) start(prepend []byte, source io.Reader) error {
	d.st = stateTransitioning
	pre := bytes.NewReader(append([]byte(nil), prepend...))
	chained := io.MultiReader(pre, source)
	zr, err := zlib.NewReader(chained)
	if err != nil {
		d.st = stateUncompressed
		return fmt.Errorf("mccp: starting zlib stream: %w", err)
	}
	d.zr = zr
	d.source = source
	d.st = stateCompressed
	return nil
}

// Reset reverts to plain mode — either the server sent a disable-compression
// subnegotiation reply mid-stream, or the zlib stream hit its natural end.
func (d *Decompressor) Reset() {
	if d.zr != nil {
		d.zr.Close()
	}
	d.zr = nil
	d.source = nil
	d.st = stateUncompressed
}

// Read inflates bytes into buf, returning n with an error wrapping
// io.ErrUnexpectedEOF when the zlib stream reports StreamEnd (spec §4.6 "decompressor returns StreamEnd, which
// surfaces as an unexpected-EOF and resets"); the caller should call Reset
// and resume feeding plain bytes after seeing that error.
func (d *Decompressor) Read(buf []byte) (int, error) {
	if d.st != stateCompressed {
		return 0, fmt.Errorf("mccp: Read called while not compressed")
	}
	n, err := d.zr.Read(buf)
	if err == io.EOF {
		return n, fmt.Errorf("mccp: %w", io.ErrUnexpectedEOF)
	}
	return n, err
}
