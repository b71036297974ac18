package transformer

import (
	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/mxp"
	"github.com/drake/mudtransform/span"
)

// OutputBuffer accumulates styled text runs and structured fragments
// (spec §4.2). It holds the flat ANSI style layer (fg/bg/flags, not a
// stack — distinct from the MXP span stack owned by the mxp.Machine this
// Transformer also drives) and tracks line boundaries for the
// drain_output/drain_complete/flush_output split.
type OutputBuffer struct {
	pending      []byte
	pendingStyle fragment.Style
	havePending  bool

	frags []fragment.Fragment

	ansiFg, ansiBg fragment.Color
	ansiFlags      fragment.Flag

	colors *[16]fragment.Color
	ignore bool

	lastBreak int // len(frags) just after the last line-terminating fragment
	inLine    bool

	// SuppressNewline, when true, makes a plain newline produce no
	// LineBreak fragment (spec §4.2). No MXP tag handler sets it.
	SuppressNewline bool
}

// NewOutputBuffer builds an empty buffer. colors overrides the 16-entry
// ANSI palette (Config.Colors); ignoreMxpColors mirrors Config.IgnoreMxpColors.
func NewOutputBuffer(colors *[16]fragment.Color, ignoreMxpColors bool) *OutputBuffer {
	return &OutputBuffer{
		ansiFg: fragment.UnsetColor(), ansiBg: fragment.UnsetColor(),
		colors: colors, ignore: ignoreMxpColors,
	}
}

// --- ansicode.StyleSink ---

func (b *OutputBuffer) SetForeground(c fragment.Color) { b.ansiFg = c }
func (b *OutputBuffer) SetBackground(c fragment.Color) { b.ansiBg = c }
func (b *OutputBuffer) SetFlag(f fragment.Flag)        { b.ansiFlags |= f }
func (b *OutputBuffer) UnsetFlag(f fragment.Flag)       { b.ansiFlags &^= f }
func (b *OutputBuffer) ResetStyle() {
	b.ansiFg, b.ansiBg = fragment.UnsetColor(), fragment.UnsetColor()
	b.ansiFlags = 0
}

// --- ansicode.FragmentSink / mxp.FragmentSink ---

// Emit flushes the pending text run (spec §4.2 "non-visual fragments
// flush before being enqueued"), then appends f, updating the line-break
// bookkeeping drain_complete relies on.
func (b *OutputBuffer) Emit(f fragment.Fragment) {
	b.flushPending()
	b.frags = append(b.frags, f)
	switch f.Kind {
	case fragment.KindLineBreak, fragment.KindPageBreak, fragment.KindHr:
		b.lastBreak = len(b.frags)
		b.inLine = false
	}
}

// CurrentStyle resolves the style that a byte appended right now would
// carry: the ANSI flat layer combined with the MXP top span, through
// mxp.ResolveColor for indexed colors (spec §4.2 "Color resolution").
func (b *OutputBuffer) CurrentStyle(spans *span.List) fragment.Style {
	fg := mxp.ResolveColor(b.ansiFg, b.colors)
	bg := mxp.ResolveColor(b.ansiBg, b.colors)
	return spans.Top().Style(fg, bg, b.ansiFlags, b.ignore)
}

// AppendByte appends one output byte under the given resolved style,
// flushing the pending run first if the style has changed (spec §4.2
// flush discipline, applied lazily at append time rather than eagerly at
// every span/ANSI mutation — equivalent fragment boundaries, since style
// is only ever observed when text is actually emitted under it).
func (b *OutputBuffer) AppendByte(c byte, style fragment.Style, spans *span.List) {
	if b.havePending && !sameStyle(b.pendingStyle, style) {
		b.flushPending()
	}
	if !b.havePending {
		b.pendingStyle = style
		b.havePending = true
	}
	b.pending = append(b.pending, c)
	spans.MarkPopulated()
	b.inLine = true
}

func sameStyle(a, bb fragment.Style) bool {
	if a.Foreground != bb.Foreground || a.Background != bb.Background || a.Flags != bb.Flags {
		return false
	}
	if a.HasFont != bb.HasFont || (a.HasFont && a.Font != bb.Font) {
		return false
	}
	if a.HasSize != bb.HasSize || (a.HasSize && a.Size != bb.Size) {
		return false
	}
	if a.HasHeading != bb.HasHeading || (a.HasHeading && a.Heading != bb.Heading) {
		return false
	}
	if (a.Link == nil) != (bb.Link == nil) {
		return false
	}
	if a.Link != nil && *a.Link != *bb.Link {
		return false
	}
	return true
}

func (b *OutputBuffer) flushPending() {
	if !b.havePending {
		return
	}
	text := append([]byte(nil), b.pending...)
	b.frags = append(b.frags, fragment.Text(text, b.pendingStyle))
	b.pending = b.pending[:0]
	b.havePending = false
}

// LineBreak appends a LineBreak fragment, flushing pending text first.
func (b *OutputBuffer) LineBreak() { b.Emit(fragment.LineBreak()) }

// PendingText exposes the not-yet-flushed text run as a string, for the
// mxp.Machine calls (SetMode/CloseTag/commitEntity) that bind an entity
// value to text already typed under a span but not yet turned into a
// Text fragment.
func (b *OutputBuffer) PendingText() string { return string(b.pending) }

// DrainOutput yields every fragment produced so far and clears the buffer.
func (b *OutputBuffer) DrainOutput() []fragment.Fragment {
	out := b.frags
	b.frags = nil
	b.lastBreak = 0
	return out
}

// DrainComplete yields only fragments up to the last line-break, leaving
// the still-assembling tail (style carry-over) for the next call — spec
// §4.1 "the client uses this while a line is still being assembled, so
// style carry-over does not cause flicker".
func (b *OutputBuffer) DrainComplete() []fragment.Fragment {
	if b.lastBreak == 0 {
		return nil
	}
	out := b.frags[:b.lastBreak]
	rest := append([]fragment.Fragment(nil), b.frags[b.lastBreak:]...)
	b.frags = rest
	b.lastBreak = 0
	return out
}

// FlushOutput force-flushes the pending text run (including a final
// partial line) then drains everything.
func (b *OutputBuffer) FlushOutput() []fragment.Fragment {
	b.flushPending()
	return b.DrainOutput()
}
