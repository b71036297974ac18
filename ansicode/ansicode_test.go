package ansicode

import (
	"testing"

	"github.com/drake/mudtransform/fragment"
)

type fakeStyle struct {
	fg, bg fragment.Color
	flags  fragment.Flag
	resets int
}

func (s *fakeStyle) SetForeground(c fragment.Color) { s.fg = c }
func (s *fakeStyle) SetBackground(c fragment.Color) { s.bg = c }
func (s *fakeStyle) SetFlag(f fragment.Flag)        { s.flags |= f }
func (s *fakeStyle) UnsetFlag(f fragment.Flag)       { s.flags &^= f }
func (s *fakeStyle) ResetStyle()                     { *s = fakeStyle{resets: s.resets + 1} }

type fakeFrag struct{ frags []fragment.Fragment }

func (f *fakeFrag) Emit(fr fragment.Fragment) { f.frags = append(f.frags, fr) }

type fakeInput struct{ written []byte }

func (f *fakeInput) WriteInput(b []byte) { f.written = append(f.written, b...) }

type fakeMxp struct{ mode int }

func (f *fakeMxp) SetMxpMode(n int) { f.mode = n }

func TestDispatchSGRBasicAttributes(t *testing.T) {
	st := &fakeStyle{}
	ip := New(st, &fakeFrag{}, nil, nil)
	ip.Param(1)
	ip.Finish(1, 'm')
	if !st.flags.Has(fragment.FlagBold) {
		t.Fatalf("expected bold flag set")
	}
	ip.Param(22)
	ip.Finish(1, 'm')
	if st.flags.Has(fragment.FlagBold) {
		t.Fatalf("expected bold flag cleared by 22")
	}
}

func TestDispatchSGRBasicColors(t *testing.T) {
	st := &fakeStyle{}
	ip := New(st, &fakeFrag{}, nil, nil)
	ip.Param(31)
	ip.Finish(1, 'm')
	if st.fg != fragment.AnsiColor(1) {
		t.Fatalf("expected ansi fg 1, got %+v", st.fg)
	}
	ip.Param(94)
	ip.Finish(1, 'm')
	if st.fg != fragment.AnsiColor(12) {
		t.Fatalf("expected bright ansi fg 12, got %+v", st.fg)
	}
	ip.Param(39)
	ip.Finish(1, 'm')
	if st.fg.Kind != fragment.ColorUnset {
		t.Fatalf("expected fg reset to unset, got %+v", st.fg)
	}
}

func TestExtended256Color(t *testing.T) {
	st := &fakeStyle{}
	ip := New(st, &fakeFrag{}, nil, nil)
	for _, n := range []int{38, 5, 201} {
		ip.Param(n)
	}
	ip.Finish(3, 'm')
	if st.fg != fragment.AnsiColor(201) {
		t.Fatalf("expected 256-color fg 201, got %+v", st.fg)
	}
}

func TestExtendedTruecolor(t *testing.T) {
	st := &fakeStyle{}
	ip := New(st, &fakeFrag{}, nil, nil)
	for _, n := range []int{48, 2, 10, 20, 30} {
		ip.Param(n)
	}
	ip.Finish(5, 'm')
	if st.bg != fragment.RgbColor(10, 20, 30) {
		t.Fatalf("expected truecolor bg, got %+v", st.bg)
	}
}

func TestSGRResetZero(t *testing.T) {
	st := &fakeStyle{}
	ip := New(st, &fakeFrag{}, nil, nil)
	ip.Param(1)
	ip.Finish(1, 'm')
	ip.Finish(0, 'm')
	if st.resets != 1 {
		t.Fatalf("expected one reset call, got %d", st.resets)
	}
}

func TestMxpModeTerminator(t *testing.T) {
	mx := &fakeMxp{}
	ip := New(&fakeStyle{}, &fakeFrag{}, nil, mx)
	ip.Finish(3, 'z')
	if mx.mode != 3 {
		t.Fatalf("expected mxp mode 3, got %d", mx.mode)
	}
}

func TestDeviceStatusReport(t *testing.T) {
	in := &fakeInput{}
	ip := New(&fakeStyle{}, &fakeFrag{}, in, nil)
	ip.Finish(6, 'n')
	if string(in.written) != "\x1b[1;1R" {
		t.Fatalf("expected cursor position reply, got %q", in.written)
	}
}

func TestEraseControlEmitsEffect(t *testing.T) {
	fr := &fakeFrag{}
	ip := New(&fakeStyle{}, fr, nil, nil)
	ip.Finish(2, 'K')
	if len(fr.frags) != 1 || fr.frags[0].Effect != fragment.EffectEraseLine {
		t.Fatalf("expected EraseLine effect, got %+v", fr.frags)
	}
}

func TestDispatchOSCTitle(t *testing.T) {
	fr := &fakeFrag{}
	ip := New(&fakeStyle{}, fr, nil, nil)
	ip.DispatchControlString(']', "2;a new title")
	if len(fr.frags) != 1 || fr.frags[0].ControlKind != fragment.ControlTitle || fr.frags[0].ControlValue != "a new title" {
		t.Fatalf("expected title control fragment, got %+v", fr.frags)
	}
}

func TestDispatchOSCPaletteSet(t *testing.T) {
	fr := &fakeFrag{}
	ip := New(&fakeStyle{}, fr, nil, nil)
	ip.DispatchControlString(']', "4;5;#112233")
	if len(fr.frags) != 1 || fr.frags[0].ControlIndex != 5 {
		t.Fatalf("expected palette-set fragment for index 5, got %+v", fr.frags)
	}
	c := fr.frags[0].ControlColor
	if c != fragment.RgbColor(0x11, 0x22, 0x33) {
		t.Fatalf("expected decoded rgb color, got %+v", c)
	}
}

func TestDispatchOSCUnknownCodeIgnored(t *testing.T) {
	fr := &fakeFrag{}
	ip := New(&fakeStyle{}, fr, nil, nil)
	ip.DispatchControlString(']', "999;whatever")
	if len(fr.frags) != 0 {
		t.Fatalf("expected unknown OSC code to be ignored, got %+v", fr.frags)
	}
}

func TestDispatchDCSStatusRequest(t *testing.T) {
	in := &fakeInput{}
	ip := New(&fakeStyle{}, &fakeFrag{}, in, nil)
	ip.DispatchControlString('P', "$q")
	if len(in.written) == 0 {
		t.Fatalf("expected a DECRPSS reply to be written")
	}
}

func TestDispatchSOSIgnored(t *testing.T) {
	fr := &fakeFrag{}
	in := &fakeInput{}
	ip := New(&fakeStyle{}, fr, in, nil)
	ip.DispatchControlString('X', "whatever")
	if len(fr.frags) != 0 || len(in.written) != 0 {
		t.Fatalf("expected SOS to produce no side effects")
	}
}
