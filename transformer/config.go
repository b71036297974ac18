// Package transformer is the top-level byte pump: it owns the Phase
// state machine, the InputBuffer/OutputBuffer pair, and wires the
// telnet, mccp, ansicode, and mxp packages into a single byte-in,
// fragment-out engine (spec §4.1, §4.2), grounded on the teacher's
// network/client.go `connection` struct — the same "owns the parser
// plus the per-connection buffers" shape, generalized from one TCP
// session to the full ansi/mxp/mccp/telnet sub-state this spec requires.
package transformer

import (
	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/telnet"
)

// UseMXP controls when MXP parsing starts (spec §6 "use_mxp"). It is
// telnet.UseMXP itself, not a parallel duplicate enum, since the value
// flows straight into the telnet.Policy the Negotiator is built from.
type UseMXP = telnet.UseMXP

const (
	MXPNever   = telnet.MXPNever
	MXPCommand = telnet.MXPCommand
	MXPQuery   = telnet.MXPQuery
	MXPAlways  = telnet.MXPAlways
)

// Config is the in-memory reconfiguration struct of spec §6, loaded from
// disk by the config package (SPEC_FULL §1 "Configuration").
type Config struct {
	UseMXP                 UseMXP
	DisableCompression     bool
	DisableUTF8            bool
	ConvertGaToNewline     bool
	NoEchoOff              bool
	NAWS                   bool
	ScreenReader           bool
	SSL                    bool
	IgnoreMxpColors        bool
	TerminalIdentification string
	AppName                string
	Version                string
	Player                 string
	Password               string
	Supports               uint32
	Colors                 *[16]fragment.Color
	Will                   map[byte]bool
}

// Default returns the zero-value-safe default configuration: MXP enabled
// on server query, compression and UTF-8 and NAWS all allowed, no
// player or password set.
func Default() Config {
	return Config{
		UseMXP:                 MXPQuery,
		TerminalIdentification: "mudtransform",
		AppName:                "mudtransform",
		Version:                "1.0",
		NAWS:                   true,
		Supports:               0xFFFFFFFF,
	}
}
