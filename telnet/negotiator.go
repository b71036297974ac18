package telnet

import (
	"strconv"

	"github.com/drake/mudtransform/fragment"
)

// Negotiator owns the CompatibilityTable and implements the per-option
// policy table of spec §4.7. It is driven by the Transformer: whenever the
// Phase state machine collects a complete WILL/WONT/DO/DONT option byte or
// a complete subnegotiation buffer, it calls the matching method here and
// appends the returned replies to its InputBuffer, and the returned
// fragments to its OutputBuffer.
type Negotiator struct {
	Table   CompatibilityTable
	policy  Policy
	ttypeN  int // TERMINAL_TYPE cycle counter
	mnesSeq int
}

// NewNegotiator builds a negotiator with the default MUD-client option set.
func NewNegotiator(policy Policy) *Negotiator {
	n := &Negotiator{policy: policy}
	n.Table.Set(OptMCCP2, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptMCCP3, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptCompress, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptEOR, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptEcho, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptSGA, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptNAWS, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptTTYPE, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptMXP, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptMSDP, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptMSSP, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptCharset, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptNewEnviron, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptLinemode, CompatibilityEntry{Local: true, Remote: true})
	n.Table.Set(OptGMCP, CompatibilityEntry{Local: true, Remote: true})
	for opt := range policy.Allowlist {
		e := n.Table.Get(opt)
		e.Local, e.Remote = true, true
		n.Table.Set(opt, e)
	}
	return n
}

func (n *Negotiator) SetPolicy(p Policy) { n.policy = p }

// Result bundles everything a negotiation/subnegotiation call produces.
type Result struct {
	Replies   []Reply
	Fragments []fragment.Fragment
	// StartCompression/StopCompression signal the Transformer to toggle
	// its Decompressor (spec §4.6); EnableMXP signals MXP parsing should
	// begin (spec §4.4).
	StartCompressionV1 bool
	StartCompressionV2 bool
	StopCompression    bool
	EnableMXP          bool
	DisableMXP         bool
}

// OnWill handles a server WILL (offering to enable an option on itself).
func (n *Negotiator) OnWill(opt byte) Result {
	switch opt {
	case OptCompress:
		if n.policy.DisableCompression || n.Table.Get(OptMCCP2).RemoteState {
			return n.reject(CmdDONT, opt)
		}
		return n.acceptWill(opt, fragment.TelnetEvent{Kind: fragment.TelnetOptionNegotiation, Command: CmdWILL, Option: opt})
	case OptMCCP2:
		if n.policy.DisableCompression {
			return n.reject(CmdDONT, opt)
		}
		r := n.acceptWill(opt, fragment.TelnetEvent{Kind: fragment.TelnetOptionNegotiation, Command: CmdWILL, Option: opt})
		return r
	case OptSGA:
		return n.acceptWill(opt, fragment.TelnetEvent{})
	case OptEcho:
		if n.policy.NoEchoOff {
			return n.reject(CmdDONT, opt)
		}
		return n.acceptWillWithEvent(opt, fragment.TelnetEvent{Kind: fragment.TelnetEchoToggle, EchoOn: false})
	case OptMXP:
		switch n.policy.UseMXP {
		case MXPNever:
			return n.reject(CmdDONT, opt)
		case MXPAlways, MXPCommand:
			r := n.acceptWill(opt, fragment.TelnetEvent{Kind: fragment.TelnetMxpToggle})
			r.EnableMXP = true
			return r
		case MXPQuery:
			r := n.acceptWill(opt, fragment.TelnetEvent{Kind: fragment.TelnetMxpToggle})
			r.EnableMXP = true
			return r
		}
	}
	if n.policy.Allowlist[opt] {
		return n.acceptWill(opt, fragment.TelnetEvent{Kind: fragment.TelnetOptionNegotiation, Command: CmdWILL, Option: opt})
	}
	return n.reject(CmdDONT, opt)
}

// OnDo handles a server DO (asking us to enable an option locally).
func (n *Negotiator) OnDo(opt byte) Result {
	switch opt {
	case OptSGA, OptCharset:
		return n.acceptDo(opt, fragment.TelnetEvent{})
	case OptEcho:
		if n.policy.NoEchoOff {
			return n.rejectLocal(CmdWONT, opt)
		}
		return n.acceptDo(opt, fragment.TelnetEvent{})
	case OptMXP:
		if n.policy.UseMXP == MXPNever {
			return n.rejectLocal(CmdWONT, opt)
		}
		return n.acceptDo(opt, fragment.TelnetEvent{Kind: fragment.TelnetMxpToggle})
	case OptTTYPE:
		n.ttypeN = 0
		return n.acceptDo(opt, fragment.TelnetEvent{})
	case OptNAWS:
		if !n.policy.NAWS {
			return n.rejectLocal(CmdWONT, opt)
		}
		r := n.acceptDo(opt, fragment.TelnetEvent{Kind: fragment.TelnetNaws})
		return r
	case OptWillEOR:
		if !n.policy.ConvertGaToNewline {
			return n.rejectLocal(CmdWONT, opt)
		}
		return n.acceptDo(opt, fragment.TelnetEvent{})
	}
	if n.policy.Allowlist[opt] {
		return n.acceptDo(opt, fragment.TelnetEvent{Kind: fragment.TelnetOptionNegotiation, Command: CmdDO, Option: opt})
	}
	return n.rejectLocal(CmdWONT, opt)
}

// OnWont handles a server WONT (disabling an option it had enabled).
func (n *Negotiator) OnWont(opt byte) Result {
	e := n.Table.Get(opt)
	wasEnabled := e.RemoteState
	e.RemoteState = false
	n.Table.Set(opt, e)
	r := Result{Fragments: []fragment.Fragment{fragment.Telnet(fragment.TelnetEvent{
		Kind: fragment.TelnetOptionNegotiation, Command: CmdWONT, Option: opt,
	})}}
	if opt == OptMXP && wasEnabled {
		r.DisableMXP = true
	}
	if (opt == OptMCCP2 || opt == OptMCCP3 || opt == OptCompress) && wasEnabled {
		r.StopCompression = true
	}
	return r
}

// OnDont handles a server DONT (withdrawing a request we honor locally).
func (n *Negotiator) OnDont(opt byte) Result {
	e := n.Table.Get(opt)
	wasEnabled := e.LocalState
	e.LocalState = false
	n.Table.Set(opt, e)
	r := Result{Fragments: []fragment.Fragment{fragment.Telnet(fragment.TelnetEvent{
		Kind: fragment.TelnetOptionNegotiation, Command: CmdDONT, Option: opt,
	})}}
	if wasEnabled {
		r.Replies = []Reply{negotiate(CmdWONT, opt)}
	}
	return r
}

func (n *Negotiator) acceptWill(opt byte, ev fragment.TelnetEvent) Result {
	e := n.Table.Get(opt)
	e.RemoteState = true
	n.Table.Set(opt, e)
	r := Result{Replies: []Reply{negotiate(CmdDO, opt)}}
	r.Fragments = []fragment.Fragment{fragment.Telnet(fragment.TelnetEvent{
		Kind: fragment.TelnetOptionNegotiation, Command: CmdWILL, Option: opt,
	})}
	if opt == OptCompress {
		r.StartCompressionV1 = true
	}
	return r
}

func (n *Negotiator) acceptWillWithEvent(opt byte, ev fragment.TelnetEvent) Result {
	e := n.Table.Get(opt)
	e.RemoteState = true
	n.Table.Set(opt, e)
	return Result{
		Replies:   []Reply{negotiate(CmdDO, opt)},
		Fragments: []fragment.Fragment{fragment.Telnet(ev)},
	}
}

func (n *Negotiator) acceptDo(opt byte, ev fragment.TelnetEvent) Result {
	e := n.Table.Get(opt)
	e.LocalState = true
	n.Table.Set(opt, e)
	r := Result{Replies: []Reply{negotiate(CmdWILL, opt)}}
	ev.Option = opt
	r.Fragments = []fragment.Fragment{fragment.Telnet(ev)}
	return r
}

func (n *Negotiator) reject(cmd, opt byte) Result {
	return Result{Replies: []Reply{negotiate(cmd, opt)}}
}

func (n *Negotiator) rejectLocal(cmd, opt byte) Result {
	return Result{Replies: []Reply{negotiate(cmd, opt)}}
}

// --- Subnegotiation dispatch (spec §4.7) ---

// OnSubnegotiation decodes a complete subnegotiation body (already stripped
// of the leading option byte, IAC SE trailer, and IAC-doubling).
func (n *Negotiator) OnSubnegotiation(opt byte, data []byte) Result {
	switch opt {
	case OptTTYPE:
		return n.onTerminalType(data)
	case OptCharset:
		return n.onCharset(data)
	case OptMCCP2, OptMCCP3:
		if n.policy.DisableCompression {
			return Result{}
		}
		return Result{StartCompressionV2: true}
	case OptMXP:
		if n.policy.UseMXP == MXPCommand {
			return Result{EnableMXP: true}
		}
		return Result{}
	case OptMSDP:
		return n.onMsdp(data)
	case OptMSSP:
		return n.onMssp(data)
	case OptNewEnviron:
		return n.onNewEnviron(data)
	default:
		return Result{Fragments: []fragment.Fragment{fragment.Telnet(fragment.TelnetEvent{
			Kind: fragment.TelnetSubnegotiation, SubnegotiationN: opt, Data: append([]byte(nil), data...),
		})}}
	}
}

func (n *Negotiator) onTerminalType(data []byte) Result {
	if len(data) == 0 || data[0] != SubSEND {
		return Result{}
	}
	var body []byte
	switch n.ttypeN {
	case 0:
		id := n.policy.TerminalIdentification
		if len(id) > 20 {
			id = id[:20]
		}
		body = []byte(id)
	case 1:
		body = []byte("ANSI")
	default:
		body = []byte(strconv.Itoa(mttsBitmask(n.policy)))
	}
	if n.ttypeN < 2 {
		n.ttypeN++
	}
	reply := make([]byte, 0, len(body)+1)
	reply = append(reply, SubIS)
	reply = append(reply, body...)
	return Result{Replies: []Reply{subnegotiation(OptTTYPE, reply)}}
}

// mttsBitmask computes the MTTS capability bitmask (spec §6.7, original's
// protocol/mtts.rs bitmask()).
func mttsBitmask(p Policy) int {
	mask := 1 // ANSI
	mask |= 8 // 256 colors
	mask |= 256 // truecolor
	mask |= 512 // MNES
	if !p.DisableUTF8 {
		mask |= 4
	}
	if p.ScreenReader {
		mask |= 64
	}
	if p.SSL {
		mask |= 2048
	}
	return mask
}

func (n *Negotiator) onCharset(data []byte) Result {
	if len(data) == 0 {
		return Result{}
	}
	switch data[0] {
	case SubRequest:
		sep := data[1:2]
		if len(data) < 2 {
			return Result{}
		}
		parts := splitByte(data[2:], sep[0])
		want := "UTF-8"
		if n.policy.DisableUTF8 {
			want = "US-ASCII"
		}
		for _, p := range parts {
			if string(p) == want {
				reply := append([]byte{SubAccepted}, p...)
				return Result{Replies: []Reply{subnegotiation(OptCharset, reply)}}
			}
		}
		// Fall back to whichever of UTF-8/US-ASCII is offered.
		for _, p := range parts {
			s := string(p)
			if s == "UTF-8" || s == "US-ASCII" {
				reply := append([]byte{SubAccepted}, p...)
				return Result{Replies: []Reply{subnegotiation(OptCharset, reply)}}
			}
		}
		return Result{Replies: []Reply{subnegotiation(OptCharset, []byte{SubRejected})}}
	}
	return Result{}
}

func splitByte(data []byte, sep byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == sep {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}

// onNewEnviron answers a NEW-ENVIRON SEND with the MNES variables this
// client advertises (SPEC_FULL §3 MNES supplement).
func (n *Negotiator) onNewEnviron(data []byte) Result {
	if len(data) == 0 || data[0] != SubSEND {
		return Result{}
	}
	const (
		varVar byte = 0
		varUSERVAR byte = 3
	)
	names := []string{"CLIENT_NAME", "CLIENT_VERSION", "MTTS"}
	buf := []byte{SubIS}
	for _, name := range names {
		buf = append(buf, varVar)
		buf = append(buf, []byte(name)...)
		buf = append(buf, 1) // VALUE
		switch name {
		case "CLIENT_NAME":
			buf = append(buf, []byte("mudtransform")...)
		case "CLIENT_VERSION":
			buf = append(buf, []byte("1")...)
		case "MTTS":
			buf = append(buf, []byte(strconv.Itoa(mttsBitmask(n.policy)))...)
		}
	}
	return Result{Replies: []Reply{subnegotiation(OptNewEnviron, buf)}}
}

// onMsdp parses `VAR name VAL value` bodies into a structured fragment,
// then also surfaces the raw bytes as a passthrough (spec's MSDP example
// scenario emits both).
func (n *Negotiator) onMsdp(data []byte) Result {
	name, value, ok := parseMsdpPair(data)
	frags := []fragment.Fragment{}
	if ok {
		frags = append(frags, fragment.Telnet(fragment.TelnetEvent{
			Kind: fragment.TelnetMsdp, MsdpName: name, MsdpValue: value,
		}))
	}
	frags = append(frags, fragment.Telnet(fragment.TelnetEvent{
		Kind: fragment.TelnetSubnegotiation, SubnegotiationN: OptMSDP, Data: append([]byte(nil), data...),
	}))
	return Result{Fragments: frags}
}

func parseMsdpPair(data []byte) (string, fragment.MsdpValue, bool) {
	if len(data) == 0 || data[0] != MsdpVar {
		return "", fragment.MsdpValue{}, false
	}
	i := 1
	start := i
	for i < len(data) && data[i] != MsdpVal {
		i++
	}
	name := string(data[start:i])
	if i >= len(data) {
		return name, fragment.MsdpValue{}, false
	}
	i++ // consume VAL
	val, _ := parseMsdpValue(data, i)
	return name, val, true
}

func parseMsdpValue(data []byte, pos int) (fragment.MsdpValue, int) {
	if pos >= len(data) {
		return fragment.MsdpValue{Kind: fragment.MsdpString}, pos
	}
	switch data[pos] {
	case MsdpArrayOpen:
		pos++
		var items []fragment.MsdpValue
		for pos < len(data) && data[pos] != MsdpArrayClose {
			if data[pos] == MsdpVal {
				pos++
				continue
			}
			var v fragment.MsdpValue
			v, pos = parseMsdpValue(data, pos)
			items = append(items, v)
		}
		if pos < len(data) {
			pos++ // consume ARRAY_CLOSE
		}
		return fragment.MsdpValue{Kind: fragment.MsdpArray, Array: items}, pos
	case MsdpTableOpen:
		pos++
		table := map[string]fragment.MsdpValue{}
		for pos < len(data) && data[pos] != MsdpTableClose {
			if data[pos] != MsdpVar {
				pos++
				continue
			}
			pos++
			start := pos
			for pos < len(data) && data[pos] != MsdpVal {
				pos++
			}
			key := string(data[start:pos])
			if pos < len(data) {
				pos++ // consume VAL
			}
			var v fragment.MsdpValue
			v, pos = parseMsdpValue(data, pos)
			table[key] = v
		}
		if pos < len(data) {
			pos++ // consume TABLE_CLOSE
		}
		return fragment.MsdpValue{Kind: fragment.MsdpTable, Table: table}, pos
	default:
		start := pos
		for pos < len(data) && data[pos] != MsdpVar && data[pos] != MsdpVal &&
			data[pos] != MsdpArrayClose && data[pos] != MsdpTableClose {
			pos++
		}
		return fragment.MsdpValue{Kind: fragment.MsdpString, String: string(data[start:pos])}, pos
	}
}

// onMssp iterates VAR/VAL-delimited pairs and emits one ServerStatus event
// per pair (spec §4.7).
func (n *Negotiator) onMssp(data []byte) Result {
	var frags []fragment.Fragment
	i := 0
	for i < len(data) {
		if data[i] != MsspVar {
			i++
			continue
		}
		i++
		start := i
		for i < len(data) && data[i] != MsspVal {
			i++
		}
		name := string(data[start:i])
		if i >= len(data) {
			break
		}
		i++ // consume VAL
		start = i
		for i < len(data) && data[i] != MsspVar {
			i++
		}
		value := string(data[start:i])
		frags = append(frags, fragment.Telnet(fragment.TelnetEvent{
			Kind: fragment.TelnetServerStatus, StatusName: name, StatusValue: value,
		}))
	}
	return Result{Fragments: frags}
}
