// Package ansicode interprets the SGR parameter stream and OSC/DCS control
// strings a Transformer's Phase state machine has already framed (spec
// §4.1, §4.5). It owns no byte-scanning of its own — the Transformer feeds
// it one CSI parameter at a time via Param, a final byte via Finish, and a
// complete OSC/DCS payload via DispatchControlString — the same
// division of labor the teacher draws between network/telnet.go's
// byte-at-a-time Phase dispatch and the small stateless decoders it calls
// into once a full unit has been collected.
//
// ansicode never imports mxp or transformer: it depends only on the
// structural sink interfaces below, which the transformer package
// satisfies with thin adapters over its OutputBuffer and mxp.Machine.
package ansicode

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/drake/mudtransform/fragment"
)

// StyleSink receives SGR-driven style changes. The ANSI layer's style is
// flat (one foreground, one background, one flag set) — not a stack like
// mxp's span.List — because spec §4.1 never nests SGR state; each SGR
// reset or attribute simply replaces the prior value.
type StyleSink interface {
	SetForeground(fragment.Color)
	SetBackground(fragment.Color)
	SetFlag(fragment.Flag)
	UnsetFlag(fragment.Flag)
	ResetStyle()
}

// FragmentSink receives the handful of non-style fragments ANSI control
// sequences can produce directly (erase effects, OSC title/icon/palette).
type FragmentSink interface {
	Emit(fragment.Fragment)
}

// InputSink receives bytes to write back to the world (DSR/DECRPSS
// replies, OSC 52 clipboard "set selection" acknowledgements are not
// echoed, only queries reply).
type InputSink interface {
	WriteInput([]byte)
}

// MxpModeSink lets the non-standard `ESC [ <n> z` terminator (spec §4.1,
// used by some servers to select an MXP line mode outside the `<`/`>`
// tag syntax) reach the mxp layer without ansicode importing mxp.
type MxpModeSink interface {
	SetMxpMode(n int)
}

// extended-color collector stage (SGR 38/48 `;5;N` and `;2;R;G;B`).
const (
	extNone = iota
	extWantMode
	extWant256
	extWantRgbR
	extWantRgbG
	extWantRgbB
)

// Interpreter turns a stream of CSI params/finals and OSC/DCS bodies into
// style, fragment, and input-sink calls (spec §4.1 SGR sub-state, §4.5).
type Interpreter struct {
	Style StyleSink
	Frag  FragmentSink
	Input InputSink
	Mxp   MxpModeSink

	extTarget int // 38 or 48, which sink the collected color applies to
	extStage  int
	rgb       [3]int
	rgbIdx    int
}

// New builds an Interpreter wired to the given sinks.
func New(style StyleSink, frag FragmentSink, input InputSink, mxp MxpModeSink) *Interpreter {
	return &Interpreter{Style: style, Frag: frag, Input: input, Mxp: mxp}
}

// Param feeds one semicolon-delimited CSI parameter (already parsed to an
// int by the Transformer's DoingCode phase, spec §4.1).
func (ip *Interpreter) Param(n int) {
	if ip.extStage != extNone {
		ip.feedExtended(n)
		return
	}
	if n == 38 {
		ip.extTarget, ip.extStage = 38, extWantMode
		return
	}
	if n == 48 {
		ip.extTarget, ip.extStage = 48, extWantMode
		return
	}
	ip.dispatchSGR(n)
}

func (ip *Interpreter) feedExtended(n int) {
	switch ip.extStage {
	case extWantMode:
		switch n {
		case 5:
			ip.extStage = extWant256
		case 2:
			ip.extStage = extWantRgbR
			ip.rgbIdx = 0
		default:
			ip.extStage = extNone // malformed sequence, bail quietly
		}
	case extWant256:
		ip.applyExtendedColor(fragment.AnsiColor(uint8(n)))
		ip.extStage = extNone
	case extWantRgbR, extWantRgbG, extWantRgbB:
		ip.rgb[ip.rgbIdx] = n
		ip.rgbIdx++
		if ip.rgbIdx == 3 {
			ip.applyExtendedColor(fragment.RgbColor(uint8(ip.rgb[0]), uint8(ip.rgb[1]), uint8(ip.rgb[2])))
			ip.extStage = extNone
		}
	}
}

func (ip *Interpreter) applyExtendedColor(c fragment.Color) {
	if ip.extTarget == 38 {
		ip.Style.SetForeground(c)
	} else {
		ip.Style.SetBackground(c)
	}
}

// Finish is called with the last collected parameter value (0 when the
// sequence had none) and the CSI final byte once a full sequence is framed (spec §4.1). Only 'm' (SGR), 'z'
// (MXP mode select), 'n' (device status report), and 'J'/'K' (erase) are
// interpreted; anything else is cursor-addressing or a private mode this
// engine does not model (§1 non-goal: cursor-addressable emulation).
func (ip *Interpreter) Finish(n int, final byte) {
	switch final {
	case 'm':
		if n == 0 {
			ip.dispatchSGR(0)
		}
		ip.extStage = extNone
	case 'z':
		if ip.Mxp != nil {
			ip.Mxp.SetMxpMode(n)
		}
	case 'n':
		ip.deviceStatusReport(n)
	case 'J', 'K':
		ip.eraseControl(final, n)
	}
}

func (ip *Interpreter) dispatchSGR(n int) {
	switch {
	case n == 0:
		ip.Style.ResetStyle()
	case n == 1:
		ip.Style.SetFlag(fragment.FlagBold)
	case n == 2:
		ip.Style.SetFlag(fragment.FlagFaint)
	case n == 3:
		ip.Style.SetFlag(fragment.FlagItalic)
	case n == 4:
		ip.Style.SetFlag(fragment.FlagUnderline)
	case n == 5 || n == 6:
		ip.Style.SetFlag(fragment.FlagBlink)
	case n == 7:
		ip.Style.SetFlag(fragment.FlagInverse)
	case n == 8:
		ip.Style.SetFlag(fragment.FlagConceal)
	case n == 9:
		ip.Style.SetFlag(fragment.FlagStrikeout)
	case n == 22:
		ip.Style.UnsetFlag(fragment.FlagBold)
		ip.Style.UnsetFlag(fragment.FlagFaint)
	case n == 23:
		ip.Style.UnsetFlag(fragment.FlagItalic)
	case n == 24:
		ip.Style.UnsetFlag(fragment.FlagUnderline)
	case n == 25:
		ip.Style.UnsetFlag(fragment.FlagBlink)
	case n == 27:
		ip.Style.UnsetFlag(fragment.FlagInverse)
	case n == 28:
		ip.Style.UnsetFlag(fragment.FlagConceal)
	case n == 29:
		ip.Style.UnsetFlag(fragment.FlagStrikeout)
	case n >= 30 && n <= 37:
		ip.Style.SetForeground(fragment.AnsiColor(uint8(n - 30)))
	case n == 39:
		ip.Style.SetForeground(fragment.UnsetColor())
	case n >= 40 && n <= 47:
		ip.Style.SetBackground(fragment.AnsiColor(uint8(n - 40)))
	case n == 49:
		ip.Style.SetBackground(fragment.UnsetColor())
	case n >= 90 && n <= 97:
		ip.Style.SetForeground(fragment.AnsiColor(uint8(n-90) + 8))
	case n >= 100 && n <= 107:
		ip.Style.SetBackground(fragment.AnsiColor(uint8(n-100) + 8))
	}
}

// deviceStatusReport answers `ESC [ 6 n` (cursor position report). This
// engine tracks no real cursor (§1 non-goal), so it always reports the
// origin, matching what a fresh-screen client would see.
func (ip *Interpreter) deviceStatusReport(n int) {
	if n == 6 && ip.Input != nil {
		ip.Input.WriteInput([]byte("\x1b[1;1R"))
	}
}

// eraseControl maps ED/EL ('J'/'K') to the one erase effect fragment.go
// models; this engine does not keep a screen buffer to erase, so both
// collapse to EffectEraseLine (spec §3 EffectKind).
func (ip *Interpreter) eraseControl(final byte, n int) {
	_ = final
	_ = n
	ip.Frag.Emit(fragment.Effect(fragment.EffectEraseLine))
}

// ControlString accumulates the body of an OSC/DCS/SOS/PM/APC sequence
// between its introducer and its ST/BEL terminator (spec §4.5).
type ControlString struct {
	Kind byte // ']' OSC, 'P' DCS, 'X' SOS, '^' PM, '_' APC
	buf  strings.Builder
}

// Start begins collection for the given introducer byte.
func (cs *ControlString) Start(kind byte) {
	cs.Kind = kind
	cs.buf.Reset()
}

// Feed appends one body byte.
func (cs *ControlString) Feed(c byte) { cs.buf.WriteByte(c) }

// Body returns the collected payload.
func (cs *ControlString) Body() string { return cs.buf.String() }

// DispatchControlString interprets a complete OSC/DCS payload (spec
// §4.5). SOS/PM/APC are collected by the Transformer but never
// interpreted here — the protocol defines no semantics for them in a MUD
// context.
func (ip *Interpreter) DispatchControlString(kind byte, body string) {
	switch kind {
	case ']':
		ip.dispatchOSC(body)
	case 'P':
		ip.dispatchDCS(body)
	}
}

// dispatchOSC handles the OSC codes spec §4.5 calls out by number:
// 0/1/2 title or icon name, 4 palette query/set, 10-18 dynamic colors,
// 50 font, 52 selection (clipboard), 104 palette reset. Any other code
// is ignored, matching a terminal that doesn't implement it.
func (ip *Interpreter) dispatchOSC(body string) {
	code, rest, ok := cutSemicolon(body)
	if !ok {
		return
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return
	}
	switch {
	case n == 0 || n == 2:
		ip.Frag.Emit(fragment.Control(fragment.ControlTitle, rest))
	case n == 1:
		ip.Frag.Emit(fragment.Control(fragment.ControlIcon, rest))
	case n == 4:
		ip.dispatchPalette(rest)
	case n >= 10 && n <= 18:
		ip.Frag.Emit(fragment.Control(fragment.ControlPalette, rest))
	case n == 50:
		ip.Frag.Emit(fragment.Control(fragment.ControlTitle, rest)) // font name, no dedicated kind
	case n == 52:
		ip.dispatchSelection(rest)
	case n == 104:
		ip.Frag.Emit(fragment.Control(fragment.ControlPalette, ""))
	}
}

// dispatchPalette parses `index;spec` pairs from an OSC 4 body, emitting
// a ControlPaletteSet fragment per pair that carries a resolvable color
// and leaving bare queries (no `;spec`) for the UI to answer itself.
func (ip *Interpreter) dispatchPalette(body string) {
	parts := strings.Split(body, ";")
	for i := 0; i+1 < len(parts); i += 2 {
		idx, err := strconv.Atoi(parts[i])
		if err != nil {
			continue
		}
		c, ok := parseXParseColor(parts[i+1])
		if !ok {
			continue
		}
		ip.Frag.Emit(fragment.ControlPaletteSet(idx, c))
	}
}

// dispatchSelection implements OSC 52 clipboard set (spec §4.5): a base64
// payload after `;c;` or `;p;` is decoded with encoding/base64 and written
// to the system clipboard via atotto/clipboard, the local sink a MUD
// client actually has access to; a `?` payload is answered with the
// clipboard text in a reply built by go-osc52.
func (ip *Interpreter) dispatchSelection(body string) {
	_, payload, ok := cutSemicolon(body)
	if !ok {
		return
	}
	if payload == "?" {
		text, err := clipboard.ReadAll()
		if err != nil {
			return
		}
		seq := osc52.New(text).String()
		if ip.Input != nil {
			ip.Input.WriteInput([]byte(seq))
		}
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return
	}
	_ = clipboard.WriteAll(string(decoded))
}

// dispatchDCS handles the DCS request forms spec §4.5 lists: `$q` status
// string requests, answered with a minimal DECRPSS reporting SGR 0 since
// no real terminal attribute state is modeled. `1v`/`1$t`/`2$t`
// (answerback and cursor-info restores) are accepted silently — this
// engine has no terminfo/cursor model to restore into.
func (ip *Interpreter) dispatchDCS(body string) {
	if strings.HasPrefix(body, "$q") && ip.Input != nil {
		ip.Input.WriteInput([]byte("\x1bP1$r0m\x1b\\"))
	}
}

func cutSemicolon(s string) (before, after string, ok bool) {
	i := strings.IndexByte(s, ';')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// parseXParseColor parses the XParseColor subset OSC 4/10-18 actually use
// in practice: `#RRGGBB` or `rgb:RR/GG/BB`.
func parseXParseColor(spec string) (fragment.Color, bool) {
	if strings.HasPrefix(spec, "#") && len(spec) == 7 {
		r, err1 := strconv.ParseUint(spec[1:3], 16, 8)
		g, err2 := strconv.ParseUint(spec[3:5], 16, 8)
		b, err3 := strconv.ParseUint(spec[5:7], 16, 8)
		if err1 == nil && err2 == nil && err3 == nil {
			return fragment.RgbColor(uint8(r), uint8(g), uint8(b)), true
		}
	}
	if strings.HasPrefix(spec, "rgb:") {
		parts := strings.Split(spec[4:], "/")
		if len(parts) == 3 {
			r, err1 := strconv.ParseUint(parts[0], 16, 8)
			g, err2 := strconv.ParseUint(parts[1], 16, 8)
			b, err3 := strconv.ParseUint(parts[2], 16, 8)
			if err1 == nil && err2 == nil && err3 == nil {
				return fragment.RgbColor(uint8(r), uint8(g), uint8(b)), true
			}
		}
	}
	return fragment.Color{}, false
}
