package telnet

import (
	"testing"

	"github.com/drake/mudtransform/fragment"
)

func TestOnWillMCCP2AcceptsWithoutStartingCompression(t *testing.T) {
	n := NewNegotiator(Policy{})
	res := n.OnWill(OptMCCP2)
	if res.StartCompressionV2 {
		t.Fatal("expected MCCP2 WILL not to start compression before IAC SB COMPRESS2 IAC SE")
	}
	if len(res.Replies) != 1 || res.Replies[0].Data[1] != CmdDO {
		t.Fatalf("expected a single DO reply, got %+v", res.Replies)
	}
}

func TestOnWillMCCP2DisabledRejects(t *testing.T) {
	n := NewNegotiator(Policy{DisableCompression: true})
	res := n.OnWill(OptMCCP2)
	if res.StartCompressionV2 {
		t.Fatal("compression must not start when disabled")
	}
	if res.Replies[0].Data[1] != CmdDONT {
		t.Fatalf("expected DONT, got %+v", res.Replies)
	}
}

func TestOnDoEchoSuppressed(t *testing.T) {
	n := NewNegotiator(Policy{})
	res := n.OnDo(OptEcho)
	if res.Replies[0].Data[1] != CmdWILL {
		t.Fatalf("expected WILL reply to DO ECHO, got %+v", res.Replies)
	}
}

func TestOnDoEchoRefusedWhenNoEchoOff(t *testing.T) {
	n := NewNegotiator(Policy{NoEchoOff: true})
	res := n.OnDo(OptEcho)
	if res.Replies[0].Data[1] != CmdWONT {
		t.Fatalf("expected WONT reply, got %+v", res.Replies)
	}
}

func TestOnWillUnknownOptionRejected(t *testing.T) {
	n := NewNegotiator(Policy{})
	res := n.OnWill(200)
	if len(res.Replies) != 1 || res.Replies[0].Data[1] != CmdDONT {
		t.Fatalf("expected DONT for unknown option, got %+v", res.Replies)
	}
}

func TestTerminalTypeCyclesThroughMTTS(t *testing.T) {
	n := NewNegotiator(Policy{TerminalIdentification: "mudtransform"})
	send := []byte{SubSEND}

	r1 := n.OnSubnegotiation(OptTTYPE, send)
	body1 := r1.Replies[0].Data
	if string(body1[4:len(body1)-2]) != "mudtransform" {
		t.Fatalf("first cycle should report terminal id, got %q", body1)
	}

	r2 := n.OnSubnegotiation(OptTTYPE, send)
	body2 := r2.Replies[0].Data
	if string(body2[4:len(body2)-2]) != "ANSI" {
		t.Fatalf("second cycle should report ANSI, got %q", body2)
	}

	r3 := n.OnSubnegotiation(OptTTYPE, send)
	body3 := r3.Replies[0].Data
	if len(body3) < 6 {
		t.Fatalf("third cycle should report MTTS bitmask, got %q", body3)
	}

	// Cycle counter caps at 2 (stays on MTTS).
	r4 := n.OnSubnegotiation(OptTTYPE, send)
	if string(r4.Replies[0].Data) != string(r3.Replies[0].Data) {
		t.Fatalf("cycle counter should not advance past MTTS")
	}
}

func TestMsdpArrayParsing(t *testing.T) {
	n := NewNegotiator(Policy{})
	body := []byte{
		MsdpVar,
	}
	body = append(body, []byte("REPORTABLE_VARIABLES")...)
	body = append(body, MsdpVal, MsdpArrayOpen, MsdpVal)
	body = append(body, []byte("HEALTH")...)
	body = append(body, MsdpVal)
	body = append(body, []byte("MANA")...)
	body = append(body, MsdpArrayClose)

	res := n.onMsdp(body)
	if len(res.Fragments) != 2 {
		t.Fatalf("expected msdp structured + passthrough fragments, got %d", len(res.Fragments))
	}
	ev := res.Fragments[0].Telnet
	if ev.MsdpName != "REPORTABLE_VARIABLES" {
		t.Fatalf("unexpected name: %q", ev.MsdpName)
	}
	if ev.MsdpValue.Kind != fragment.MsdpArray || len(ev.MsdpValue.Array) != 2 {
		t.Fatalf("expected array of 2, got %+v", ev.MsdpValue)
	}
	if ev.MsdpValue.Array[0].String != "HEALTH" || ev.MsdpValue.Array[1].String != "MANA" {
		t.Fatalf("unexpected array values: %+v", ev.MsdpValue.Array)
	}
}

func TestMsspPairs(t *testing.T) {
	n := NewNegotiator(Policy{})
	body := []byte{MsspVar}
	body = append(body, []byte("PLAYERS")...)
	body = append(body, MsspVal)
	body = append(body, []byte("5")...)
	res := n.onMssp(body)
	if len(res.Fragments) != 1 {
		t.Fatalf("expected one status fragment, got %d", len(res.Fragments))
	}
	ev := res.Fragments[0].Telnet
	if ev.StatusName != "PLAYERS" || ev.StatusValue != "5" {
		t.Fatalf("unexpected status: %+v", ev)
	}
}

func TestEscapeUnescapeIAC(t *testing.T) {
	data := []byte{1, CmdIAC, 2}
	esc := EscapeIAC(data)
	if len(esc) != 4 || esc[1] != CmdIAC || esc[2] != CmdIAC {
		t.Fatalf("expected doubled IAC, got %v", esc)
	}
	back := UnescapeIAC(esc)
	if len(back) != 3 || back[1] != CmdIAC {
		t.Fatalf("unescape should collapse doubled IAC, got %v", back)
	}
}
