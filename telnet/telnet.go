// Package telnet implements the option-negotiation policy and
// subnegotiation decoders of RFC 854 and its MUD-specific descendants
// (MCCP, MTTS, NAWS, CHARSET, MXP, MSDP, MSSP, NEW-ENVIRON/MNES).
//
// It does not itself walk a byte stream looking for IAC — that is the
// Transformer's job (its Phase enum owns the Iac/Will/Wont/Do/Dont/Sb
// states, spec §4.1) — this package is the per-option policy table and
// subnegotiation-body decoder the Transformer calls into once it has
// collected a complete option byte or subnegotiation buffer. The
// CompatibilityTable bitmask layout is a direct port of the teacher's
// network/telnet.go (itself a port of libmudtelnet's compatibility table).
package telnet

// Telnet command codes.
const (
	CmdIAC  byte = 255
	CmdWILL byte = 251
	CmdWONT byte = 252
	CmdDO   byte = 253
	CmdDONT byte = 254
	CmdNOP  byte = 241
	CmdSB   byte = 250
	CmdSE   byte = 240
	CmdGA   byte = 249
	CmdEOR  byte = 239
	CmdAO   byte = 245
	CmdEC   byte = 247
	CmdEL   byte = 248
)

// Telnet option codes relevant to a MUD client.
const (
	OptEcho       byte = 1
	OptSGA        byte = 3
	OptStatus     byte = 5
	OptTTYPE      byte = 24
	OptEOR        byte = 25
	OptNAWS       byte = 31
	OptLinemode   byte = 34
	OptNewEnviron byte = 39
	OptCharset    byte = 42
	OptMSDP       byte = 69
	OptMSSP       byte = 70
	OptCompress   byte = 85 // MCCP v1
	OptMCCP2      byte = 86
	OptMCCP3      byte = 87
	OptMXP        byte = 91
	OptZMP        byte = 93
	OptWillEOR    byte = OptEOR
	OptGMCP       byte = 201
)

// Subnegotiation sub-command bytes.
const (
	SubIS       byte = 0
	SubSEND     byte = 1
	SubRequest  byte = 1 // CHARSET REQUEST / NEW-ENVIRON SEND share code 1
	SubAccepted byte = 2
	SubRejected byte = 3
)

// MSDP delimiter bytes (spec §4.7).
const (
	MsdpVar        byte = 1
	MsdpVal        byte = 2
	MsdpTableOpen  byte = 3
	MsdpTableClose byte = 4
	MsdpArrayOpen  byte = 5
	MsdpArrayClose byte = 6
)

// MSSP delimiter bytes.
const (
	MsspVar byte = 1
	MsspVal byte = 2
)

// UseMXP controls when MXP parsing starts.
type UseMXP int

const (
	MXPNever UseMXP = iota
	MXPCommand
	MXPQuery
	MXPAlways
)

// Policy is the subset of transformer.Config the negotiator needs. It is
// a plain value type (no behavior) so this package has no dependency on
// the transformer package.
type Policy struct {
	UseMXP                 UseMXP
	DisableCompression     bool
	DisableUTF8            bool
	ConvertGaToNewline     bool
	NoEchoOff              bool
	NAWS                   bool
	ScreenReader           bool
	SSL                    bool
	TerminalIdentification string
	Allowlist              map[byte]bool
}

// --- CompatibilityTable (bitmask per option, port of libmudtelnet) ---

const (
	bitLocal       byte = 1
	bitRemote      byte = 1 << 1
	bitLocalState  byte = 1 << 2
	bitRemoteState byte = 1 << 3
)

type CompatibilityEntry struct {
	Local, Remote, LocalState, RemoteState bool
}

func (e CompatibilityEntry) toU8() byte {
	var res byte
	if e.Local {
		res |= bitLocal
	}
	if e.Remote {
		res |= bitRemote
	}
	if e.LocalState {
		res |= bitLocalState
	}
	if e.RemoteState {
		res |= bitRemoteState
	}
	return res
}

func entryFromU8(v byte) CompatibilityEntry {
	return CompatibilityEntry{
		Local:       v&bitLocal != 0,
		Remote:      v&bitRemote != 0,
		LocalState:  v&bitLocalState != 0,
		RemoteState: v&bitRemoteState != 0,
	}
}

// CompatibilityTable tracks negotiated state for all 256 options.
type CompatibilityTable struct {
	options [256]byte
}

func (t *CompatibilityTable) Get(opt byte) CompatibilityEntry { return entryFromU8(t.options[opt]) }
func (t *CompatibilityTable) Set(opt byte, e CompatibilityEntry) {
	t.options[opt] = e.toU8()
}

func (t *CompatibilityTable) ResetStates() {
	for i := range t.options {
		e := entryFromU8(t.options[i])
		e.LocalState, e.RemoteState = false, false
		t.options[i] = e.toU8()
	}
}

// Reply is an outbound three-byte (or framed subnegotiation) sequence the
// Transformer appends to its InputBuffer.
type Reply struct {
	Data []byte
}

// EscapeIAC doubles IAC bytes for outbound data embedded in a subnegotiation.
func EscapeIAC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = append(out, b)
		if b == CmdIAC {
			out = append(out, CmdIAC)
		}
	}
	return out
}

// UnescapeIAC collapses doubled IAC bytes in a received subnegotiation body.
func UnescapeIAC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	sawIAC := false
	for _, v := range data {
		if sawIAC {
			sawIAC = false
			if v != CmdIAC {
				out = append(out, v)
			}
			continue
		}
		if v == CmdIAC {
			sawIAC = true
			out = append(out, v)
			continue
		}
		out = append(out, v)
	}
	return out
}

func negotiate(cmd, opt byte) Reply { return Reply{Data: []byte{CmdIAC, cmd, opt}} }

func subnegotiation(opt byte, data []byte) Reply {
	escaped := EscapeIAC(data)
	buf := make([]byte, 0, 5+len(escaped))
	buf = append(buf, CmdIAC, CmdSB, opt)
	buf = append(buf, escaped...)
	buf = append(buf, CmdIAC, CmdSE)
	return Reply{Data: buf}
}
