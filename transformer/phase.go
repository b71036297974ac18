package transformer

// Phase is the Transformer's top-level byte-dispatch state (spec §4.1,
// exhaustive enumeration).
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseEsc
	PhaseDoingCode
	PhaseFg256Start
	PhaseFg256Finish
	PhaseFg24bR
	PhaseFg24bG
	PhaseFg24bB
	PhaseBg256Start
	PhaseBg256Finish
	PhaseBg24bR
	PhaseBg24bG
	PhaseBg24bB
	PhaseIac
	PhaseWill
	PhaseWont
	PhaseDo
	PhaseDont
	PhaseSb
	PhaseSubnegotiation
	PhaseSubnegotiationIac
	PhaseCompress
	PhaseCompressWill
	PhaseUtf8Character
	PhaseMxpElement
	PhaseMxpComment
	PhaseMxpQuote
	PhaseMxpEntity
	PhaseMxpWelcome
	PhaseControlString
)

// resetSensitive reports whether byte c forces an in-progress
// mid-markup/mid-mode phase back to Normal (spec §4.1 step 3). IAC is
// only reset-sensitive outside the telnet subnegotiation collectors,
// which need to see every byte including a literal IAC.
func (p Phase) resetSensitive(c byte) bool {
	switch p {
	case PhaseMxpElement, PhaseMxpComment, PhaseMxpQuote, PhaseMxpEntity, PhaseMxpWelcome,
		PhaseDoingCode, PhaseFg256Start, PhaseFg256Finish,
		PhaseFg24bR, PhaseFg24bG, PhaseFg24bB,
		PhaseBg256Start, PhaseBg256Finish, PhaseBg24bR, PhaseBg24bG, PhaseBg24bB:
		return c == '\r' || c == '\n' || c == esc || c == iac
	}
	return false
}

const (
	esc byte = 0x1B
	iac byte = 0xFF
)
