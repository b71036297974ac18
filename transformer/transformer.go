package transformer

import (
	"errors"
	"io"

	"github.com/drake/mudtransform/ansicode"
	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/mccp"
	"github.com/drake/mudtransform/mxp"
	"github.com/drake/mudtransform/span"
	"github.com/drake/mudtransform/telnet"
)

// Transformer is the byte-in, fragment-out engine of spec §4.1: it owns
// the Phase dispatch loop and wires the telnet, mccp, ansicode, and mxp
// packages plus its own OutputBuffer/InputBuffer into a single pipeline,
// grounded on the teacher's network/client.go `connection` struct — the
// same "owns the parser plus the per-connection buffers" shape,
// generalized here from one TCP session's read loop to the full
// ansi/mxp/mccp/telnet sub-state this engine tracks.
type Transformer struct {
	cfg   Config
	phase Phase

	out *OutputBuffer
	in  *InputBuffer

	machine   *mxp.Machine
	tok       *mxp.Tokenizer
	entityTok *mxp.EntityTokenizer
	mxpEnabled bool

	ansi *ansicode.Interpreter

	neg *telnet.Negotiator

	decomp  *mccp.Decompressor
	feeder  *feeder
	compressPendingV1 bool
	compressPendingV2 bool

	// CSI parameter collector (PhaseDoingCode).
	csiCur        int
	csiHadContent bool

	// Telnet collectors.
	sbOpt byte
	sbBuf []byte

	// OSC/DCS collector (PhaseControlString).
	ctrl       ansicode.ControlString
	ctrlSawEsc bool

	lastSourceByte byte

	// pendingCR records that the previous byte was a lone \r, so the next
	// byte (unless it's \n, completing a \r\n pair) surfaces an
	// EffectCarriageReturn before anything else runs (spec §4.1 step 1).
	pendingCR bool

	// utf8buf accumulates a high-bit-set byte run while phase ==
	// PhaseUtf8Character (spec §4.1 step 2), flushed as one unit once a
	// non-continuation byte ends the run.
	utf8buf []byte
}

// NewTransformer builds a Transformer and its component sub-state from
// cfg (spec §4.1 `new(config)`).
func NewTransformer(cfg Config) *Transformer {
	t := &Transformer{cfg: cfg, phase: PhaseNormal}
	t.out = NewOutputBuffer(cfg.Colors, cfg.IgnoreMxpColors)
	t.in = &InputBuffer{}
	t.machine = mxp.NewMachine(t.out, t.in)
	t.applyIdentity(cfg)
	t.tok = mxp.NewTokenizer(t.machine)
	t.entityTok = mxp.NewEntityTokenizer(t.machine)
	t.ansi = ansicode.New(t.out, t.out, t.in, t)
	t.neg = telnet.NewNegotiator(t.policy(cfg))
	t.decomp = mccp.NewDecompressor()
	t.mxpEnabled = cfg.UseMXP == MXPAlways
	return t
}

func (t *Transformer) applyIdentity(cfg Config) {
	t.machine.AppName = cfg.AppName
	t.machine.Version = cfg.Version
	t.machine.Player = cfg.Player
	t.machine.Password = cfg.Password
	t.machine.Supports = mxp.SupportBit(cfg.Supports)
}

func (t *Transformer) policy(cfg Config) telnet.Policy {
	return telnet.Policy{
		UseMXP:                 cfg.UseMXP,
		DisableCompression:     cfg.DisableCompression,
		DisableUTF8:            cfg.DisableUTF8,
		ConvertGaToNewline:     cfg.ConvertGaToNewline,
		NoEchoOff:              cfg.NoEchoOff,
		NAWS:                   cfg.NAWS,
		ScreenReader:           cfg.ScreenReader,
		SSL:                    cfg.SSL,
		TerminalIdentification: cfg.TerminalIdentification,
		Allowlist:              cfg.Will,
	}
}

// SetConfig is the sole reconfiguration path (spec §6 "Persisted state:
// none... set_config is the sole reconfiguration path").
func (t *Transformer) SetConfig(cfg Config) {
	t.cfg = cfg
	t.out.colors = cfg.Colors
	t.out.ignore = cfg.IgnoreMxpColors
	t.applyIdentity(cfg)
	t.neg.SetPolicy(t.policy(cfg))
	if cfg.UseMXP == MXPAlways {
		t.mxpEnabled = true
	}
}

// --- ansicode.MxpModeSink ---

// SetMxpMode answers the non-standard `ESC [ <n> z` terminator some
// servers use to select an MXP mode outside the `<`/`>` tag syntax.
func (t *Transformer) SetMxpMode(n int) {
	t.machine.SetMode(mxp.Mode(n), t.out.PendingText())
}

func (t *Transformer) mxpActive() bool {
	return t.mxpEnabled && t.machine.Mode.Parses()
}

// --- Top-level byte dispatch (spec §4.1) ---

// Receive processes newly-arrived bytes, advancing the Phase state
// machine and feeding fragments into the OutputBuffer and bytes into the
// InputBuffer as a side effect. scratch is reusable decompression scratch
// space; pass nil to let Receive allocate its own.
func (t *Transformer) Receive(data []byte, scratch []byte) error {
	if len(scratch) == 0 {
		scratch = make([]byte, 4096)
	}
	if t.decomp.Active() {
		t.ensureFeeder().buf.Write(data)
		return t.drainCompressed(scratch)
	}
	return t.receivePlain(data, scratch)
}

func (t *Transformer) receivePlain(data []byte, scratch []byte) error {
	for i := 0; i < len(data); i++ {
		if err := t.processByte(data[i]); err != nil {
			return err
		}
		if t.compressPendingV1 || t.compressPendingV2 {
			prepend := append([]byte(nil), data[i+1:]...)
			f := t.ensureFeeder()
			var err error
			if t.compressPendingV1 {
				err = t.decomp.StartV1(prepend, f)
			} else {
				err = t.decomp.StartV2(prepend, f)
			}
			t.compressPendingV1, t.compressPendingV2 = false, false
			if err != nil {
				return err
			}
			return t.drainCompressed(scratch)
		}
	}
	return nil
}

func (t *Transformer) ensureFeeder() *feeder {
	if t.feeder == nil {
		t.feeder = &feeder{}
	}
	return t.feeder
}

// drainCompressed inflates and dispatches bytes until the decompressor
// runs dry (errNeedMoreInput, wait for the next Receive) or its stream
// ends (io.ErrUnexpectedEOF, spec §4.6 "resets"), at which point any
// leftover staged bytes fall through to plain processing.
func (t *Transformer) drainCompressed(scratch []byte) error {
	for {
		if !t.decomp.Active() {
			rest := append([]byte(nil), t.feeder.buf.Bytes()...)
			t.feeder.buf.Reset()
			return t.receivePlain(rest, scratch)
		}
		n, err := t.decomp.Read(scratch)
		for i := 0; i < n; i++ {
			if perr := t.processByte(scratch[i]); perr != nil {
				return perr
			}
			if !t.decomp.Active() {
				rest := append([]byte(nil), scratch[i+1:n]...)
				rest = append(rest, t.feeder.buf.Bytes()...)
				t.feeder.buf.Reset()
				return t.receivePlain(rest, scratch)
			}
		}
		if err != nil {
			if errors.Is(err, errNeedMoreInput) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				t.decomp.Reset()
				rest := append([]byte(nil), t.feeder.buf.Bytes()...)
				t.feeder.buf.Reset()
				return t.receivePlain(rest, scratch)
			}
			return err
		}
	}
}

func (t *Transformer) processByte(c byte) error {
	// Step 1 (spec §4.1): a lone \r — one not immediately followed by \n —
	// surfaces as an EffectCarriageReturn before c is processed at all.
	if t.pendingCR {
		t.pendingCR = false
		if c != '\n' {
			t.out.Emit(fragment.Effect(fragment.EffectCarriageReturn))
		}
	}

	// Step 2 (spec §4.1): a non-continuation byte ends an accumulating
	// UTF-8 run; flush it before c resumes normal dispatch.
	if t.phase == PhaseUtf8Character && !isUtf8Continuation(c) {
		t.flushUtf8()
		t.phase = PhaseNormal
	}

	switch t.phase {
	case PhaseNormal:
		t.handleNormal(c)
	case PhaseEsc:
		t.handleEsc(c)
	case PhaseDoingCode:
		t.handleCSI(c)
	case PhaseIac:
		t.handleIac(c)
	case PhaseWill, PhaseWont, PhaseDo, PhaseDont:
		t.handleNegotiation(c)
	case PhaseSb:
		t.sbOpt = c
		t.sbBuf = t.sbBuf[:0]
		t.phase = PhaseSubnegotiation
	case PhaseSubnegotiation:
		t.handleSubnegotiation(c)
	case PhaseSubnegotiationIac:
		t.handleSubnegotiationIac(c)
	case PhaseMxpElement:
		t.handleMxpTokenizer(c)
	case PhaseMxpEntity:
		t.handleMxpEntity(c)
	case PhaseControlString:
		t.handleControlString(c)
	case PhaseUtf8Character:
		t.utf8buf = append(t.utf8buf, c)
	default:
		// PhaseFg256Start/Finish/Fg24bR/G/B/Bg256*/Bg24b*, PhaseCompress,
		// PhaseCompressWill, PhaseMxpComment/Quote/Welcome: declared for
		// Phase's exhaustive enumeration but never entered — their
		// sub-dispatch is delegated to ansicode.Interpreter (extended-color
		// collector), mxp.Tokenizer (comment/quote collector), and the
		// Negotiator (MCCP1 via a plain WILL), which already track the
		// equivalent sub-state internally.
		t.phase = PhaseNormal
	}

	t.pendingCR = c == '\r'
	return nil
}

// isUtf8Continuation reports whether c is a UTF-8 continuation byte
// (10xxxxxx), the only kind of byte PhaseUtf8Character keeps accumulating.
func isUtf8Continuation(c byte) bool {
	return c&0xC0 == 0x80
}

// flushUtf8 writes the accumulated high-bit byte run out as a single unit
// (spec §4.1 step 2) and clears the accumulator.
func (t *Transformer) flushUtf8() {
	for _, b := range t.utf8buf {
		t.appendOutputByte(b)
	}
	t.utf8buf = t.utf8buf[:0]
}

func (t *Transformer) handleNormal(c byte) {
	switch {
	case c == esc:
		t.phase = PhaseEsc
		return
	case c == iac:
		t.phase = PhaseIac
		return
	case c == '\r':
		return
	case c == '\n':
		t.handleNewline()
		return
	case c == '\a':
		t.out.Emit(fragment.Effect(fragment.EffectBeep))
		return
	case c == '\b':
		t.out.Emit(fragment.Effect(fragment.EffectBackspace))
		return
	case c == '\f':
		t.out.Emit(fragment.PageBreak())
		return
	case c == '\t' && t.machine.Spans.Top().Format&span.FormatParagraph != 0:
		t.appendOutputByte(' ')
		return
	case c&0x80 != 0:
		t.utf8buf = append(t.utf8buf[:0], c)
		t.phase = PhaseUtf8Character
		return
	}
	if t.mxpActive() {
		if c == '&' {
			t.phase = PhaseMxpEntity
			return
		}
		if c == '<' {
			t.tok.Start()
			t.phase = PhaseMxpElement
			return
		}
	}
	t.appendOutputByte(c)
}

// handleNewline implements spec §4.2's paragraph collapsing: inside a
// Paragraph-formatted span, source newlines reflow into spaces rather
// than becoming LineBreak fragments; outside one, a newline is a literal
// break unless an MXP image directive suppressed it.
func (t *Transformer) handleNewline() {
	top := t.machine.Spans.Top()
	if top.Format&span.FormatParagraph != 0 {
		switch {
		case t.lastSourceByte == '\n':
			t.out.Emit(fragment.LineBreak())
			t.out.Emit(fragment.LineBreak())
		case t.lastSourceByte == '.':
			t.appendOutputByte(' ')
			t.appendOutputByte(' ')
		case t.lastSourceByte == ' ' || t.lastSourceByte == '\t':
			// dropped
		default:
			t.appendOutputByte(' ')
		}
	} else if !t.out.SuppressNewline {
		t.out.LineBreak()
	}
	t.lastSourceByte = '\n'
}

func (t *Transformer) appendOutputByte(c byte) {
	style := t.out.CurrentStyle(t.machine.Spans)
	t.out.AppendByte(c, style, t.machine.Spans)
	t.lastSourceByte = c
}

func (t *Transformer) handleEsc(c byte) {
	switch c {
	case '[':
		t.phase = PhaseDoingCode
		t.csiCur, t.csiHadContent = 0, false
	case ']':
		t.ctrl.Start(']')
		t.phase = PhaseControlString
	case 'P':
		t.ctrl.Start('P')
		t.phase = PhaseControlString
	case 'X', '^', '_':
		t.ctrl.Start(c)
		t.phase = PhaseControlString
	default:
		t.phase = PhaseNormal
	}
}

func (t *Transformer) handleCSI(c byte) {
	switch {
	case c >= '0' && c <= '9':
		t.csiCur = t.csiCur*10 + int(c-'0')
		t.csiHadContent = true
	case c == ';':
		t.ansi.Param(t.csiCur)
		t.csiCur = 0
		t.csiHadContent = true
	case c >= 0x3C && c <= 0x3F, c >= 0x20 && c <= 0x2F:
		// private-mode marker / intermediate byte; this engine models no
		// cursor-addressable state to apply it to (§1 non-goal).
	case c >= 0x40 && c <= 0x7E:
		if t.csiHadContent {
			t.ansi.Param(t.csiCur)
		}
		t.ansi.Finish(t.csiCur, c)
		t.phase = PhaseNormal
	default:
		t.phase = PhaseNormal
	}
}

func (t *Transformer) handleIac(c byte) {
	switch c {
	case iac:
		t.appendOutputByte(0xFF)
		t.phase = PhaseNormal
	case telnet.CmdWILL:
		t.phase = PhaseWill
	case telnet.CmdWONT:
		t.phase = PhaseWont
	case telnet.CmdDO:
		t.phase = PhaseDo
	case telnet.CmdDONT:
		t.phase = PhaseDont
	case telnet.CmdSB:
		t.phase = PhaseSb
	case telnet.CmdGA, telnet.CmdEOR:
		if t.cfg.ConvertGaToNewline {
			t.handleNewline()
		} else {
			t.out.Emit(fragment.Telnet(fragment.TelnetEvent{Kind: fragment.TelnetGoAhead}))
		}
		t.phase = PhaseNormal
	case telnet.CmdAO:
		t.out.flushPending()
		t.phase = PhaseNormal
	case telnet.CmdEC:
		t.out.Emit(fragment.Effect(fragment.EffectEraseCharacter))
		t.phase = PhaseNormal
	case telnet.CmdEL:
		t.out.Emit(fragment.Effect(fragment.EffectEraseLine))
		t.phase = PhaseNormal
	default:
		t.phase = PhaseNormal
	}
}

func (t *Transformer) handleNegotiation(opt byte) {
	var res telnet.Result
	switch t.phase {
	case PhaseWill:
		res = t.neg.OnWill(opt)
	case PhaseWont:
		res = t.neg.OnWont(opt)
	case PhaseDo:
		res = t.neg.OnDo(opt)
	case PhaseDont:
		res = t.neg.OnDont(opt)
	}
	t.applyNegotiationResult(res)
	t.phase = PhaseNormal
}

func (t *Transformer) handleSubnegotiation(c byte) {
	if c == iac {
		t.phase = PhaseSubnegotiationIac
		return
	}
	t.sbBuf = append(t.sbBuf, c)
}

func (t *Transformer) handleSubnegotiationIac(c byte) {
	switch c {
	case telnet.CmdSE:
		// The IAC case below already collapsed each doubled IAC into sbBuf.
		body := append([]byte(nil), t.sbBuf...)
		res := t.neg.OnSubnegotiation(t.sbOpt, body)
		t.applyNegotiationResult(res)
		t.phase = PhaseNormal
	case iac:
		t.sbBuf = append(t.sbBuf, iac)
		t.phase = PhaseSubnegotiation
	default:
		t.phase = PhaseNormal
	}
}

func (t *Transformer) applyNegotiationResult(res telnet.Result) {
	for _, r := range res.Replies {
		t.in.WriteInput(r.Data)
	}
	for _, f := range res.Fragments {
		t.out.Emit(f)
	}
	if res.EnableMXP {
		t.mxpEnabled = true
	}
	if res.DisableMXP {
		t.mxpEnabled = false
	}
	if res.StartCompressionV1 {
		t.compressPendingV1 = true
	}
	if res.StartCompressionV2 {
		t.compressPendingV2 = true
	}
	if res.StopCompression {
		t.decomp.Reset()
	}
}

func (t *Transformer) handleMxpTokenizer(c byte) {
	t.tok.Feed(c, t.out.PendingText())
	if !t.tok.Active() {
		t.phase = PhaseNormal
	}
}

func (t *Transformer) handleMxpEntity(c byte) {
	text, done := t.entityTok.Feed(c)
	if !done {
		return
	}
	for i := 0; i < len(text); i++ {
		t.appendOutputByte(text[i])
	}
	t.phase = PhaseNormal
}

func (t *Transformer) handleControlString(c byte) {
	if t.ctrlSawEsc {
		t.ctrlSawEsc = false
		if c == '\\' {
			t.finishControlString()
			return
		}
		// Not a valid ST (ESC \); the ESC wasn't a terminator after all,
		// so feed it through as a literal body byte before c.
		t.ctrl.Feed(esc)
	}
	if c == 0x07 {
		t.finishControlString()
		return
	}
	if c == esc {
		t.ctrlSawEsc = true
		return
	}
	t.ctrl.Feed(c)
}

func (t *Transformer) finishControlString() {
	t.ansi.DispatchControlString(t.ctrl.Kind, t.ctrl.Body())
	t.phase = PhaseNormal
}

// --- Output/input draining (spec §4.1 contract) ---

func (t *Transformer) DrainOutput() []fragment.Fragment   { return t.out.DrainOutput() }
func (t *Transformer) DrainComplete() []fragment.Fragment { return t.out.DrainComplete() }
func (t *Transformer) FlushOutput() []fragment.Fragment   { return t.out.FlushOutput() }
func (t *Transformer) DrainInput() *DrainHandle            { return t.in.Drain() }

// IntoParts tears the Transformer down, returning its configuration
// alongside any output and input bytes still buffered (spec §4.1
// `into_parts() -> (config, ...)`), for a caller swapping in a fresh
// Transformer mid-session without losing in-flight data.
func (t *Transformer) IntoParts() (Config, []fragment.Fragment, []byte) {
	frags := t.out.FlushOutput()
	var pending []byte
	if h := t.in.Drain(); h != nil {
		pending = append([]byte(nil), h.Bytes()...)
		h.Advance(len(pending))
		h.Close()
	}
	return t.cfg, frags, pending
}
