package mxp

import (
	"strings"
	"testing"

	"github.com/drake/mudtransform/fragment"
)

type recordingSink struct {
	frags []fragment.Fragment
	input []byte
}

func (s *recordingSink) Emit(f fragment.Fragment) { s.frags = append(s.frags, f) }
func (s *recordingSink) WriteInput(b []byte)       { s.input = append(s.input, b...) }

func feedTag(t *testing.T, tok *Tokenizer, raw string) {
	t.Helper()
	tok.Start()
	// Start stands for the opening '<', which is not fed to the tokenizer.
	raw = strings.TrimPrefix(raw, "<")
	for i := 0; i < len(raw); i++ {
		tok.Feed(raw[i], "")
	}
}

func TestOpenBoldPushesSpan(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	tok := NewTokenizer(m)
	feedTag(t, tok, "<B>")
	if !m.Spans.Top().Flags.Has(fragment.FlagBold) {
		t.Fatalf("expected bold flag set on top span")
	}
}

func TestCloseTagTruncatesSpans(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	tok := NewTokenizer(m)
	feedTag(t, tok, "<B>")
	feedTag(t, tok, "<COLOR fore=red>")
	// COLOR mutates B's still-unpopulated span in place rather than
	// pushing a new one, so the stack stays one span deep until text is
	// actually emitted under it.
	if m.Spans.Len() != 1 {
		t.Fatalf("expected 1 span (in-place mutation), got %d", m.Spans.Len())
	}
	feedTag(t, tok, "</B>")
	if m.Spans.Len() != 0 {
		t.Fatalf("expected close of B to truncate the span, got %d", m.Spans.Len())
	}
}

func TestCloseTagSecureMismatchErrors(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	tok := NewTokenizer(m)
	feedTag(t, tok, "<B>")
	m.Mode = ModeOpen
	feedTag(t, tok, "</B>")
	if len(sink.frags) == 0 || sink.frags[0].Kind != fragment.KindMxpError {
		t.Fatalf("expected TagOpenedInSecureMode error, got %+v", sink.frags)
	}
	if sink.frags[0].MxpError != fragment.ErrTagOpenedInSecureMode {
		t.Fatalf("wrong error kind: %v", sink.frags[0].MxpError)
	}
}

func TestUnknownElementEmitsError(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	tok := NewTokenizer(m)
	feedTag(t, tok, "<FROBNICATE>")
	if len(sink.frags) != 1 || sink.frags[0].MxpError != fragment.ErrUnknownElement {
		t.Fatalf("expected UnknownElement, got %+v", sink.frags)
	}
}

func TestDefinitionRejectedWhenNotSecure(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeOpen
	tok := NewTokenizer(m)
	feedTag(t, tok, "<!ELEMENT RNAME 'B'>")
	if len(sink.frags) != 1 || sink.frags[0].MxpError != fragment.ErrDefinitionWhenNotSecure {
		t.Fatalf("expected DefinitionWhenNotSecure, got %+v", sink.frags)
	}
	if _, ok := m.Elements["rname"]; ok {
		t.Fatalf("definition should have been discarded")
	}
}

func TestDefineAndUseUserElement(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	tok := NewTokenizer(m)
	feedTag(t, tok, "<!ELEMENT RNAME 'COLOR fore=green'>")
	feedTag(t, tok, "<RNAME>")
	if m.Spans.Len() != 1 {
		t.Fatalf("expected the user element to open one span, got %d", m.Spans.Len())
	}
	if m.Spans.Top().Foreground.Kind != fragment.ColorRgb {
		t.Fatalf("expected resolved green color, got %+v", m.Spans.Top().Foreground)
	}
}

func TestEntityDefinitionAndDecode(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	tok := NewTokenizer(m)
	feedTag(t, tok, "<!ENTITY greeting 'hello there'>")
	v, ok := m.Entities.Decode("greeting")
	if !ok || v != "hello there" {
		t.Fatalf("expected entity decode to find definition, got %q %v", v, ok)
	}
}

func TestEntityAddRemove(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	m.DefineEntity("list", "a", EntityActionSet, false, "")
	m.DefineEntity("list", "b", EntityActionAdd, false, "")
	e, _ := m.Entities.Get("list")
	if e.Value != "a|b" {
		t.Fatalf("expected pipe-joined list, got %q", e.Value)
	}
	m.DefineEntity("list", "a", EntityActionRemove, false, "")
	e, _ = m.Entities.Get("list")
	if e.Value != "b" {
		t.Fatalf("expected a removed from list, got %q", e.Value)
	}
}

func TestEntityTokenizerNumericAndNamed(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	et := NewEntityTokenizer(m)
	var out string
	for _, c := range []byte("#65;") {
		if text, done := et.Feed(c); done {
			out = text
		}
	}
	if out != "A" {
		t.Fatalf("expected decoded 'A', got %q", out)
	}

	et2 := NewEntityTokenizer(m)
	out = ""
	for _, c := range []byte("lt;") {
		if text, done := et2.Feed(c); done {
			out = text
		}
	}
	if out != "<" {
		t.Fatalf("expected decoded '<', got %q", out)
	}
}

func TestEntityTokenizerControlCodeRejected(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	et := NewEntityTokenizer(m)
	var done bool
	for _, c := range []byte("#7;") {
		_, done = et.Feed(c)
	}
	if !done {
		t.Fatalf("expected entity to complete")
	}
	if len(sink.frags) != 1 || sink.frags[0].MxpError != fragment.ErrDisallowedEntityNumber {
		t.Fatalf("expected DisallowedEntityNumber, got %+v", sink.frags)
	}
}

func TestModeResetClosesNonSurvivingTags(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, sink)
	m.Mode = ModeSecure
	tok := NewTokenizer(m)
	feedTag(t, tok, "<B>")
	feedTag(t, tok, "<I>")
	m.SetMode(ModeReset, "")
	if m.Mode != ModeOpen {
		t.Fatalf("expected mode OPEN after reset, got %v", m.Mode)
	}
	if m.Spans.Len() != 0 {
		t.Fatalf("expected reset to close all resettable tags, got %d spans", m.Spans.Len())
	}
}

func TestParseArgsQuotedAndBareValues(t *testing.T) {
	positional, named := ParseArgs(`href='look at sign' hint="a sign" foo`)
	if named["href"] != "look at sign" {
		t.Fatalf("expected quoted href, got %q", named["href"])
	}
	if named["hint"] != "a sign" {
		t.Fatalf("expected double-quoted hint, got %q", named["hint"])
	}
	if len(positional) != 1 || positional[0] != "foo" {
		t.Fatalf("expected one positional token, got %v", positional)
	}
}

func TestSupportReplyFormat(t *testing.T) {
	b := SupportReply(SupportBold | SupportColor)
	s := string(b)
	if !strings.HasPrefix(s, "\x1b[1z<SUPPORTS") {
		t.Fatalf("expected MXP-escaped support reply, got %q", s)
	}
	if !strings.Contains(s, "+B") || !strings.Contains(s, "+COLOR") {
		t.Fatalf("expected +B and +COLOR tokens, got %q", s)
	}
	if !strings.Contains(s, "-I") {
		t.Fatalf("expected -I for unset bit, got %q", s)
	}
}

func TestModeParsesPredicate(t *testing.T) {
	if !ModeOpen.Parses() {
		t.Fatalf("OPEN should parse markup")
	}
	if ModeLocked.Parses() {
		t.Fatalf("LOCKED should not parse markup")
	}
	if Mode(42).Parses() {
		t.Fatalf("user-defined line-tag mode should not parse markup")
	}
}
