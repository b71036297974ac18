package mxp

// Mode is the MXP mode byte (spec §3 "MxpMode"). Values 20..=99 are
// user-defined line-tag modes.
type Mode uint8

const (
	ModeOpen Mode = iota
	ModeSecure
	ModeLocked
	ModeReset
	ModeSecureOnce
	ModePermOpen
	ModePermSecure
	ModePermLocked
)

func (m Mode) IsOpen() bool {
	return m == ModeOpen || m == ModePermOpen || m >= 20
}

func (m Mode) IsSecure() bool {
	return m == ModeSecure || m == ModeSecureOnce || m == ModePermSecure
}

// IsMxp reports whether this mode is a recognized, parseable mode at all
// (spec's "is_mxp" predicate).
func (m Mode) IsMxp() bool {
	return m <= ModePermLocked || (m >= 20 && m <= 99)
}

// Parses reports whether markup should be tokenized in this mode — MXP
// stops parsing in LOCKED or any user-defined line-tag mode (spec §3
// invariant "MXP ceases to parse markup when mxp_mode is LOCKED or
// user-defined").
func (m Mode) Parses() bool {
	if m == ModeLocked {
		return false
	}
	if m >= 20 && m <= 99 {
		return false
	}
	return true
}
