// Package span implements the MXP style-context stack described in spec
// §4.3: a stack of style spans with copy-on-write push semantics, kept as
// its own package (rather than nested inside the output buffer) so both
// the transformer's OutputBuffer and the mxp package's element resolver
// can depend on it without a cycle between them — the same leaf-package
// shape the teacher uses for network's CompatibilityTable, a small pure
// data structure with no knowledge of its callers.
package span

import "github.com/drake/mudtransform/fragment"

// Format is a bitmask of paragraph/structural format flags a span can
// carry (distinct from fragment.Flag, which is visual SGR-style state).
type Format uint8

const (
	FormatParagraph Format = 1 << iota
	FormatPre
	FormatScript
)

// Span is one MXP style context (spec §3 "Span").
type Span struct {
	Flags      fragment.Flag
	Format     Format
	Foreground fragment.Color
	Background fragment.Color
	Font       string
	HasFont    bool
	Size       int
	HasSize    bool
	Action     *fragment.Link
	Heading    int
	HasHeading bool
	List       string
	HasList    bool
	Variable   string
	HasVar     bool
	Gag        bool
	Window     string
	HasWindow  bool

	// Populated flips true once any text has been emitted under this span
	// (spec §4.3 push rule).
	Populated bool
}

func (s Span) clone() Span { return s }

// Style resolves a span into the public fragment.Style carried on Text
// fragments. ansiFg/ansiBg are the ANSI-layer colors currently active;
// they are overridden by the span's own color unless ignoreMxpColors is
// set (Config.IgnoreMxpColors, spec §6).
func (s Span) Style(ansiFg, ansiBg fragment.Color, ansiFlags fragment.Flag, ignoreMxpColors bool) fragment.Style {
	st := fragment.Style{
		Foreground: ansiFg,
		Background: ansiBg,
		Flags:      ansiFlags | s.Flags,
	}
	if !ignoreMxpColors {
		if s.Foreground.Kind != fragment.ColorUnset {
			st.Foreground = s.Foreground
		}
		if s.Background.Kind != fragment.ColorUnset {
			st.Background = s.Background
		}
	}
	if s.HasFont {
		st.Font, st.HasFont = s.Font, true
	}
	if s.HasSize {
		st.Size, st.HasSize = s.Size, true
	}
	if s.Action != nil {
		st.Link = s.Action
	}
	if s.HasHeading {
		st.Heading, st.HasHeading = s.Heading, true
	}
	return st
}

// List is a stack of style spans.
type List struct {
	spans []Span
}

// New creates an empty span list.
func New() *List { return &List{} }

// Len reports the current stack depth.
func (l *List) Len() int { return len(l.spans) }

// Top returns the current span, or the zero span if the stack is empty.
func (l *List) Top() Span {
	if len(l.spans) == 0 {
		return Span{}
	}
	return l.spans[len(l.spans)-1]
}

// mutate applies fn per the push rule of spec §4.3 and reports whether a
// new span was pushed: push a fresh default span if none
// exists; mutate in place if the top is unpopulated; clone-and-push if the
// top is populated and the value actually differs, after a prior equality
// check performed by the caller via `changed`.
func (l *List) mutate(changed bool, fn func(*Span)) bool {
	if !changed {
		return false
	}
	if len(l.spans) == 0 {
		var s Span
		fn(&s)
		l.spans = append(l.spans, s)
		return true
	}
	top := &l.spans[len(l.spans)-1]
	if !top.Populated {
		fn(top)
		return false
	}
	clone := top.clone()
	fn(&clone)
	clone.Populated = false
	l.spans = append(l.spans, clone)
	return true
}

func (l *List) SetFlag(f fragment.Flag) bool {
	return l.mutate(l.Top().Flags&f == 0, func(s *Span) { s.Flags |= f })
}

func (l *List) UnsetFlag(f fragment.Flag) bool {
	return l.mutate(l.Top().Flags&f != 0, func(s *Span) { s.Flags &^= f })
}

func (l *List) SetForeground(c fragment.Color) bool {
	return l.mutate(l.Top().Foreground != c, func(s *Span) { s.Foreground = c })
}

func (l *List) SetBackground(c fragment.Color) bool {
	return l.mutate(l.Top().Background != c, func(s *Span) { s.Background = c })
}

func (l *List) SetFont(name string) bool {
	top := l.Top()
	return l.mutate(!top.HasFont || top.Font != name, func(s *Span) { s.Font, s.HasFont = name, true })
}

func (l *List) SetSize(n int) bool {
	top := l.Top()
	return l.mutate(!top.HasSize || top.Size != n, func(s *Span) { s.Size, s.HasSize = n, true })
}

func (l *List) SetAction(link fragment.Link) bool {
	top := l.Top()
	return l.mutate(top.Action == nil || !sameLink(*top.Action, link), func(s *Span) { link := link; s.Action = &link })
}

// sameLink compares everything but Prompts (a slice, so not comparable
// with ==); prompt lists are never mutated in place once a link is set.
func sameLink(a, b fragment.Link) bool {
	return a.Action == b.Action && a.Hint == b.Hint && a.HasHint == b.HasHint &&
		a.SendTo == b.SendTo && a.Expires == b.Expires && len(a.Prompts) == len(b.Prompts)
}

func (l *List) SetHeading(h int) bool {
	top := l.Top()
	return l.mutate(!top.HasHeading || top.Heading != h, func(s *Span) { s.Heading, s.HasHeading = h, true })
}

func (l *List) SetList(kind string) bool {
	top := l.Top()
	return l.mutate(!top.HasList || top.List != kind, func(s *Span) { s.List, s.HasList = kind, true })
}

func (l *List) SetEntity(name string) bool {
	top := l.Top()
	return l.mutate(!top.HasVar || top.Variable != name, func(s *Span) { s.Variable, s.HasVar = name, true })
}

func (l *List) SetGag() bool {
	return l.mutate(!l.Top().Gag, func(s *Span) { s.Gag = true })
}

func (l *List) SetWindow(name string) bool {
	top := l.Top()
	return l.mutate(!top.HasWindow || top.Window != name, func(s *Span) { s.Window, s.HasWindow = name, true })
}

func (l *List) SetFormat(f Format) bool {
	return l.mutate(l.Top().Format&f == 0, func(s *Span) { s.Format |= f })
}

func (l *List) UnsetFormat(f Format) bool {
	return l.mutate(l.Top().Format&f != 0, func(s *Span) { s.Format &^= f })
}

// Truncated is returned by Truncate for each span dropped from the top,
// in drop order, so the caller (mxp.Machine) can commit any
// entity binding those spans carried (spec §4.3 "Truncation").
type Truncated struct {
	Span Span
}

// Truncate drops spans from the top down to length n and returns the
// dropped spans, top-first.
func (l *List) Truncate(n int) []Truncated {
	if n >= len(l.spans) || n < 0 {
		return nil
	}
	dropped := make([]Truncated, 0, len(l.spans)-n)
	for i := len(l.spans) - 1; i >= n; i-- {
		dropped = append(dropped, Truncated{Span: l.spans[i]})
	}
	l.spans = l.spans[:n]
	return dropped
}

// MarkPopulated flips the top span's Populated bit (called once any text
// has been written under it).
func (l *List) MarkPopulated() {
	if len(l.spans) == 0 {
		return
	}
	l.spans[len(l.spans)-1].Populated = true
}
