package transformer

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/mxp"
	"github.com/drake/mudtransform/telnet"
)

func drainText(t *testing.T, tr *Transformer) []fragment.Fragment {
	t.Helper()
	return tr.FlushOutput()
}

func onlyText(t *testing.T, frags []fragment.Fragment) fragment.Fragment {
	t.Helper()
	for _, f := range frags {
		if f.Kind == fragment.KindText {
			return f
		}
	}
	t.Fatalf("expected a Text fragment, got %+v", frags)
	return fragment.Fragment{}
}

func TestBasicSGR(t *testing.T) {
	tr := NewTransformer(Default())
	if err := tr.Receive([]byte("\x1b[1;31mHello\x1b[0m"), nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "Hello" {
		t.Fatalf("got text %q", frag.Text)
	}
	if !frag.Style.Flags.Has(fragment.FlagBold) {
		t.Fatalf("expected bold flag, got %+v", frag.Style)
	}
	if frag.Style.Foreground != fragment.RgbColor(0x80, 0, 0) {
		t.Fatalf("expected ansi red resolved to #800000, got %+v", frag.Style.Foreground)
	}
}

func TestTruecolorSGR(t *testing.T) {
	tr := NewTransformer(Default())
	if err := tr.Receive([]byte("\x1b[38;2;10;20;30mHi"), nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "Hi" {
		t.Fatalf("got text %q", frag.Text)
	}
	if frag.Style.Foreground != fragment.RgbColor(10, 20, 30) {
		t.Fatalf("expected truecolor foreground, got %+v", frag.Style.Foreground)
	}
}

func TestMxpColorTagUnderSGR(t *testing.T) {
	tr := NewTransformer(Default())
	tr.mxpEnabled = true
	if err := tr.Receive([]byte("\x1b[1m<C fore=red>Hi</C>"), nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "Hi" {
		t.Fatalf("got text %q", frag.Text)
	}
	if !frag.Style.Flags.Has(fragment.FlagBold) {
		t.Fatalf("expected the ansi bold flag to survive under MXP color, got %+v", frag.Style)
	}
	if frag.Style.Foreground != fragment.RgbColor(255, 0, 0) {
		t.Fatalf("expected MXP red to override ansi foreground, got %+v", frag.Style.Foreground)
	}
	if tr.machine.Spans.Len() != 0 {
		t.Fatalf("expected </C> to close the span, got depth %d", tr.machine.Spans.Len())
	}
}

func TestMxpSendLink(t *testing.T) {
	tr := NewTransformer(Default())
	tr.mxpEnabled = true
	tr.machine.Mode = mxp.ModeSecure
	if err := tr.Receive([]byte("<SEND href='look'>look</SEND>"), nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "look" {
		t.Fatalf("got text %q", frag.Text)
	}
	if frag.Style.Link == nil {
		t.Fatalf("expected a link style, got %+v", frag.Style)
	}
	if frag.Style.Link.Action != "look" || frag.Style.Link.SendTo != fragment.SendToWorld {
		t.Fatalf("unexpected link: %+v", frag.Style.Link)
	}
}

func TestMxpEntityRoundTrip(t *testing.T) {
	tr := NewTransformer(Default())
	tr.mxpEnabled = true
	tr.machine.Mode = mxp.ModeSecure
	if err := tr.Receive([]byte("<!ENTITY greeting 'Hello there'>&greeting;"), nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "Hello there" {
		t.Fatalf("expected entity to expand in place, got %q", frag.Text)
	}
}

func TestMsdpArrayDecoded(t *testing.T) {
	tr := NewTransformer(Default())
	body := []byte{telnet.MsdpVar}
	body = append(body, "EXITS"...)
	body = append(body, telnet.MsdpVal, telnet.MsdpArrayOpen, telnet.MsdpVal)
	body = append(body, "n"...)
	body = append(body, telnet.MsdpVal)
	body = append(body, "s"...)
	body = append(body, telnet.MsdpArrayClose)

	msg := []byte{telnet.CmdIAC, telnet.CmdSB, telnet.OptMSDP}
	msg = append(msg, body...)
	msg = append(msg, telnet.CmdIAC, telnet.CmdSE)

	if err := tr.Receive(msg, nil); err != nil {
		t.Fatal(err)
	}
	frags := drainText(t, tr)
	var found *fragment.TelnetEvent
	for i := range frags {
		if frags[i].Kind == fragment.KindTelnet && frags[i].Telnet.Kind == fragment.TelnetMsdp {
			found = &frags[i].Telnet
		}
	}
	if found == nil {
		t.Fatalf("expected a decoded MSDP fragment, got %+v", frags)
	}
	if found.MsdpName != "EXITS" || found.MsdpValue.Kind != fragment.MsdpArray {
		t.Fatalf("unexpected MSDP payload: %+v", found)
	}
	if len(found.MsdpValue.Array) != 2 || found.MsdpValue.Array[0].String != "n" || found.MsdpValue.Array[1].String != "s" {
		t.Fatalf("unexpected MSDP array contents: %+v", found.MsdpValue.Array)
	}
}

func TestCompressionSwitchMidStream(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte("Hello\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	tr := NewTransformer(Default())
	msg := []byte{telnet.CmdIAC, telnet.CmdSB, telnet.OptMCCP2, telnet.CmdIAC, telnet.CmdSE}
	msg = append(msg, buf.Bytes()...)

	if err := tr.Receive(msg, nil); err != nil {
		t.Fatal(err)
	}
	if tr.decomp.Active() {
		t.Fatalf("expected the zlib stream end to reset decompression")
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "Hello" {
		t.Fatalf("expected decompressed text, got %q", frag.Text)
	}
}

// --- Universal properties ---

func TestByteConservationPlainText(t *testing.T) {
	tr := NewTransformer(Default())
	const s = "the quick brown fox"
	if err := tr.Receive([]byte(s), nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != s {
		t.Fatalf("expected byte-for-byte passthrough, got %q", frag.Text)
	}
}

func TestOrderPreservedAcrossFragmentKinds(t *testing.T) {
	tr := NewTransformer(Default())
	if err := tr.Receive([]byte("one\ntwo"), nil); err != nil {
		t.Fatal(err)
	}
	frags := drainText(t, tr)
	if len(frags) != 3 {
		t.Fatalf("expected [Text(one), LineBreak, Text(two)], got %+v", frags)
	}
	if frags[0].Kind != fragment.KindText || string(frags[0].Text) != "one" {
		t.Fatalf("unexpected first fragment: %+v", frags[0])
	}
	if frags[1].Kind != fragment.KindLineBreak {
		t.Fatalf("unexpected second fragment: %+v", frags[1])
	}
	if frags[2].Kind != fragment.KindText || string(frags[2].Text) != "two" {
		t.Fatalf("unexpected third fragment: %+v", frags[2])
	}
}

func TestFlushOutputIsIdempotent(t *testing.T) {
	tr := NewTransformer(Default())
	if err := tr.Receive([]byte("hi"), nil); err != nil {
		t.Fatal(err)
	}
	first := tr.FlushOutput()
	if len(first) != 1 {
		t.Fatalf("expected one fragment on first flush, got %+v", first)
	}
	second := tr.FlushOutput()
	if len(second) != 0 {
		t.Fatalf("expected nothing left to flush, got %+v", second)
	}
}

func TestNegotiationRepliesDO(t *testing.T) {
	tr := NewTransformer(Default())
	msg := []byte{telnet.CmdIAC, telnet.CmdWILL, telnet.OptSGA}
	if err := tr.Receive(msg, nil); err != nil {
		t.Fatal(err)
	}
	h := tr.DrainInput()
	if h == nil {
		t.Fatalf("expected a queued DO reply")
	}
	want := []byte{telnet.CmdIAC, telnet.CmdDO, telnet.OptSGA}
	if !bytes.Equal(h.Bytes(), want) {
		t.Fatalf("got reply %v, want %v", h.Bytes(), want)
	}
	h.Advance(len(want))
	h.Close()
}

func TestTagBalanceReturnsSpansToZero(t *testing.T) {
	tr := NewTransformer(Default())
	tr.mxpEnabled = true
	if err := tr.Receive([]byte("<B><I>bi</I></B>"), nil); err != nil {
		t.Fatal(err)
	}
	if tr.machine.Spans.Len() != 0 {
		t.Fatalf("expected balanced tags to empty the span stack, got depth %d", tr.machine.Spans.Len())
	}
}

func TestModeContainmentMXPNeverLeavesMarkupLiteral(t *testing.T) {
	cfg := Default()
	cfg.UseMXP = MXPNever
	tr := NewTransformer(cfg)
	if err := tr.Receive([]byte("<B>plain</B>"), nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "<B>plain</B>" {
		t.Fatalf("expected literal markup passthrough, got %q", frag.Text)
	}
}

func TestCompressionTransparencySplitAcrossReceives(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte("split across calls")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	payload := buf.Bytes()
	mid := len(payload) / 2

	tr := NewTransformer(Default())
	msg := []byte{telnet.CmdIAC, telnet.CmdSB, telnet.OptMCCP2, telnet.CmdIAC, telnet.CmdSE}
	msg = append(msg, payload[:mid]...)

	if err := tr.Receive(msg, nil); err != nil {
		t.Fatal(err)
	}
	if err := tr.Receive(payload[mid:], nil); err != nil {
		t.Fatal(err)
	}
	frag := onlyText(t, drainText(t, tr))
	if string(frag.Text) != "split across calls" {
		t.Fatalf("expected reassembled decompressed text, got %q", frag.Text)
	}
}
