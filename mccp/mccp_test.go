package mccp

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func compress(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecompressRoundTrip(t *testing.T) {
	payload := compress(t, "hello\n")
	d := NewDecompressor()
	if d.Active() {
		t.Fatal("should start inactive")
	}
	if err := d.StartV2(nil, bytes.NewReader(payload)); err != nil {
		t.Fatal(err)
	}
	if !d.Active() {
		t.Fatal("expected active after StartV2")
	}

	out := make([]byte, 64)
	var got []byte
	for {
		n, err := d.Read(out)
		got = append(got, out[:n]...)
		if err != nil {
			if err != io.ErrUnexpectedEOF && !bytes.Contains([]byte(err.Error()), []byte("unexpected EOF")) {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
		if n == 0 {
			break
		}
	}
	if string(got) != "hello\n" {
		t.Fatalf("got %q, want %q", got, "hello\n")
	}
}

func TestPrependSplicesBytesPastSwitch(t *testing.T) {
	payload := compress(t, "abc")
	// Simulate bytes already read past the compression switch marker: the
	// first three compressed bytes arrive as prepend, the rest through the
	// remaining reader.
	split := 3
	prepend := payload[:split]
	rest := payload[split:]

	d := NewDecompressor()
	if err := d.StartV2(prepend, bytes.NewReader(rest)); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 64)
	var got []byte
	for {
		n, err := d.Read(out)
		got = append(got, out[:n]...)
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}
	if string(got) != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestResetReturnsToUncompressed(t *testing.T) {
	d := NewDecompressor()
	payload := compress(t, "x")
	if err := d.StartV2(nil, bytes.NewReader(payload)); err != nil {
		t.Fatal(err)
	}
	d.Reset()
	if d.Active() {
		t.Fatal("expected inactive after Reset")
	}
	d.FeedPlain([]byte("plain"))
	buf := make([]byte, 5)
	if n := d.ReadPlain(buf); n != 5 || string(buf) != "plain" {
		t.Fatalf("plain passthrough broken: n=%d buf=%q", n, buf)
	}
}
