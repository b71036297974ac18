// Command muddemo is a minimal CLI driver exercising the transformer
// engine against a real MUD socket (SPEC_FULL §0 "cmd/muddemo/"),
// standing in for the dropped bubbletea TUI (spec §1: "UI rendering of
// fragments" is out of scope for the core) while still giving the
// Fragment consumer API (spec §6) somewhere real to run. Grounded on the
// teacher's cmd/rune entrypoint for flag parsing and its ui/style
// package for color choices, trimmed to a line-oriented renderer.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-isatty"

	"github.com/drake/mudtransform/config"
	"github.com/drake/mudtransform/debug"
	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/stream"
	"github.com/drake/mudtransform/transformer"
)

func main() {
	addr := flag.String("addr", "", "host:port of the MUD to connect to")
	cfgPath := flag.String("config", config.Path(), "path to the transformer config YAML")
	flag.Parse()

	if *addr == "" {
		fmt.Fprintln(os.Stderr, "usage: muddemo -addr host:port")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "muddemo: loading config:", err)
		os.Exit(1)
	}

	tr := transformer.NewTransformer(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	adapter, err := stream.Dial(ctx, *addr, tr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "muddemo: connect:", err)
		os.Exit(1)
	}
	defer adapter.Close()

	if err := adapter.QueryAndSendWindowSize(os.Stdout.Fd()); err != nil && debug.Enabled() {
		fmt.Fprintln(os.Stderr, "muddemo: NAWS:", err)
	}

	monitor := debug.NewMonitor(ctx, adapter)
	monitor.Start()

	r := newRenderer(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := adapter.Send(scanner.Text()); err != nil {
				fmt.Fprintln(os.Stderr, "muddemo: send:", err)
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-adapter.Output():
			if !ok {
				return
			}
			r.render(f)
		}
	}
}

// renderer turns fragment.Fragment values into terminal output, using
// lipgloss styles when stdout is a real TTY and plain text otherwise
// (spec §6 "Fragment consumer API", an external collaborator to the core
// this command exercises).
type renderer struct {
	styled bool
	out    *bufio.Writer
}

func newRenderer(styled bool) *renderer {
	return &renderer{styled: styled, out: bufio.NewWriter(os.Stdout)}
}

func (r *renderer) render(f fragment.Fragment) {
	defer r.out.Flush()

	switch f.Kind {
	case fragment.KindText:
		if f.Gag {
			return
		}
		r.writeText(f)
	case fragment.KindLineBreak:
		r.out.WriteByte('\n')
	case fragment.KindPageBreak:
		if r.styled {
			r.out.WriteString(ansi.EraseDisplay(2) + ansi.CursorPosition(1, 1))
		} else {
			r.out.WriteString("\n\x0c\n")
		}
	case fragment.KindHr:
		r.out.WriteString("\n" + horizontalRule + "\n")
	case fragment.KindImage:
		fmt.Fprintf(r.out, "[image: %s]", f.ImageURL)
	case fragment.KindFrame:
		fmt.Fprintf(r.out, "[frame: %s]", f.FrameName)
	case fragment.KindEffect:
		r.renderEffect(f.Effect)
	case fragment.KindMxpError:
		if debug.Enabled() {
			fmt.Fprintf(os.Stderr, "[mxp error %d]\n", f.MxpError)
		}
	}
}

const horizontalRule = "────────────────────────────────────────"

// renderEffect maps the non-visual effect fragments to real terminal
// control sequences via charmbracelet/x/ansi's CSI builders (SPEC_FULL
// §2 domain-stack), the same "build ED/EL sequences for a live
// terminal" usage other_examples' mecca.go template renderer makes of
// this package.
func (r *renderer) renderEffect(k fragment.EffectKind) {
	switch k {
	case fragment.EffectBeep:
		r.out.WriteByte(0x07)
	case fragment.EffectBackspace:
		r.out.WriteString("\b \b")
	case fragment.EffectEraseLine:
		if r.styled {
			r.out.WriteString(ansi.EraseLine(0))
		}
	case fragment.EffectEraseCharacter:
		if r.styled {
			r.out.WriteString("\b" + ansi.EraseLine(0))
		} else {
			r.out.WriteString("\b \b")
		}
	}
}

func (r *renderer) writeText(f fragment.Fragment) {
	if !r.styled {
		r.out.Write(f.Text)
		return
	}
	r.out.WriteString(styleFor(f.Style).Render(string(f.Text)))
}

// styleFor renders a fragment.Style's ANSI/MXP attributes into a
// lipgloss.Style (SPEC_FULL §2 domain-stack: lipgloss in cmd/muddemo).
func styleFor(s fragment.Style) lipgloss.Style {
	st := lipgloss.NewStyle()
	if c, ok := lipglossColor(s.Foreground); ok {
		st = st.Foreground(c)
	}
	if c, ok := lipglossColor(s.Background); ok {
		st = st.Background(c)
	}
	if s.Flags.Has(fragment.FlagBold) {
		st = st.Bold(true)
	}
	if s.Flags.Has(fragment.FlagItalic) {
		st = st.Italic(true)
	}
	if s.Flags.Has(fragment.FlagUnderline) {
		st = st.Underline(true)
	}
	if s.Flags.Has(fragment.FlagStrikeout) {
		st = st.Strikethrough(true)
	}
	if s.Flags.Has(fragment.FlagBlink) {
		st = st.Blink(true)
	}
	if s.Flags.Has(fragment.FlagInverse) {
		st = st.Reverse(true)
	}
	if s.Flags.Has(fragment.FlagFaint) {
		st = st.Faint(true)
	}
	return st
}

func lipglossColor(c fragment.Color) (lipgloss.Color, bool) {
	switch c.Kind {
	case fragment.ColorAnsi:
		return lipgloss.Color(fmt.Sprintf("%d", c.Ansi)), true
	case fragment.ColorRgb:
		return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)), true
	default:
		return "", false
	}
}
