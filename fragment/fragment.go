// Package fragment defines the structured output the transformer produces:
// a tagged-variant stream of display fragments, the way network.TelnetEvent
// tags a handful of optional payload fields by Kind instead of using a Go
// interface hierarchy per event type.
package fragment

// Kind identifies which fields of a Fragment are meaningful.
type Kind int

const (
	KindText Kind = iota
	KindLineBreak
	KindPageBreak
	KindHr
	KindImage
	KindFrame
	KindEffect
	KindTelnet
	KindMxpEntity
	KindMxpError
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindLineBreak:
		return "LineBreak"
	case KindPageBreak:
		return "PageBreak"
	case KindHr:
		return "Hr"
	case KindImage:
		return "Image"
	case KindFrame:
		return "Frame"
	case KindEffect:
		return "Effect"
	case KindTelnet:
		return "Telnet"
	case KindMxpEntity:
		return "MxpEntity"
	case KindMxpError:
		return "MxpError"
	case KindControl:
		return "Control"
	default:
		return "Unknown"
	}
}

// EffectKind enumerates non-visual terminal/MXP effects (spec §3).
type EffectKind int

const (
	EffectBeep EffectKind = iota
	EffectBackspace
	EffectCarriageReturn
	EffectEraseCharacter
	EffectEraseLine
	EffectSound
	EffectMusic
	EffectGauge
	EffectStat
	EffectExpire
	EffectFilter
	EffectRelocate
)

// EntityLifecycle distinguishes a published MXP entity being set or unset.
type EntityLifecycle int

const (
	EntitySet EntityLifecycle = iota
	EntityUnset
)

// MxpErrorKind enumerates the recoverable MXP parse anomalies (spec §7).
type MxpErrorKind int

const (
	ErrUnterminatedElement MxpErrorKind = iota
	ErrUnterminatedEntity
	ErrUnterminatedQuote
	ErrUnterminatedComment
	ErrEmptyElement
	ErrInvalidElementName
	ErrInvalidEntityName
	ErrInvalidEntityNumber
	ErrDisallowedEntityNumber
	ErrUnknownElement
	ErrUnknownEntity
	ErrInvalidDefinition
	ErrDefinitionWhenNotSecure
	ErrElementWhenNotSecure
	ErrArgumentsToClosingTag
	ErrOpenTagBlockedBySecureTag
	ErrOpenTagNotThere
	ErrTagOpenedInSecureMode
	ErrNoClosingSemicolon
	ErrNoArgument
	ErrInvalidArgumentName
	ErrMalformedBytes
	ErrNoInbuiltDefinitionTag
	ErrUnknownElementInAttlist
	ErrCannotRedefineEntity
)

// TelnetEventKind enumerates the telnet-layer events surfaced to the UI.
type TelnetEventKind int

const (
	TelnetGoAhead TelnetEventKind = iota
	TelnetNaws
	TelnetServerStatus
	TelnetSubnegotiation
	TelnetEchoToggle
	TelnetMxpToggle
	TelnetOptionNegotiation
	TelnetMsdp
)

// MsdpValueKind tags the variant shape of an MSDP value (spec §4.7).
type MsdpValueKind int

const (
	MsdpString MsdpValueKind = iota
	MsdpArray
	MsdpTable
)

// MsdpValue is a recursive MSDP value (string, array, or table).
type MsdpValue struct {
	Kind   MsdpValueKind
	String string
	Array  []MsdpValue
	Table  map[string]MsdpValue
}

// TelnetEvent is the payload of a KindTelnet fragment.
type TelnetEvent struct {
	Kind            TelnetEventKind
	Option          byte
	Command         byte // WILL/WONT/DO/DONT for TelnetOptionNegotiation
	EchoOn          bool
	Width, Height   int // NAWS
	StatusName      string
	StatusValue     string
	SubnegotiationN byte
	Data            []byte
	MsdpName        string
	MsdpValue       MsdpValue
}

// Color is either unset, an 8-bit ANSI index, or a 24-bit truecolor value.
type ColorKind int

const (
	ColorUnset ColorKind = iota
	ColorAnsi
	ColorRgb
)

type Color struct {
	Kind    ColorKind
	Ansi    uint8
	R, G, B uint8
}

func UnsetColor() Color          { return Color{Kind: ColorUnset} }
func AnsiColor(i uint8) Color    { return Color{Kind: ColorAnsi, Ansi: i} }
func RgbColor(r, g, b uint8) Color { return Color{Kind: ColorRgb, R: r, G: g, B: b} }

// Flag is a bitmask of style flags (spec §3 Style).
type Flag uint16

const (
	FlagBold Flag = 1 << iota
	FlagItalic
	FlagUnderline
	FlagBlink
	FlagInverse
	FlagStrikeout
	FlagHighlight
	FlagFaint
	FlagConceal
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// SendTo identifies where a Link's action should be routed.
type SendTo int

const (
	SendToWorld SendTo = iota
	SendToInput
	SendToInternet
)

// Prompt is one entry of a Link's prompt list.
type Prompt struct {
	Label  string
	Action string
}

// Link is an MXP action binding attached to a Style (spec §3).
type Link struct {
	Action  string
	Hint    string
	HasHint bool
	Prompts []Prompt
	SendTo  SendTo
	Expires string
}

// Style is the full set of attributes carried on a Text fragment.
type Style struct {
	Foreground Color
	Background Color
	Flags      Flag
	Font       string
	HasFont    bool
	Size       int
	HasSize    bool
	Link       *Link
	Heading    int
	HasHeading bool
}

// Fragment is a single structured unit of the output stream (spec §3).
type Fragment struct {
	Kind Kind

	// KindText
	Text  []byte
	Style Style

	// KindImage
	ImageURL string

	// KindFrame
	FrameName   string
	FrameLayout string

	// KindEffect
	Effect EffectKind

	// KindTelnet
	Telnet TelnetEvent

	// KindMxpEntity
	EntityLifecycle EntityLifecycle
	EntityName      string
	EntityValue     string

	// KindMxpError
	MxpError MxpErrorKind

	// KindControl
	ControlKind  ControlKind
	ControlValue string
	ControlIndex int
	ControlColor Color

	// Display hints (spec §3): every fragment carries these.
	Gag    bool
	Window string
}

func Text(b []byte, style Style) Fragment {
	return Fragment{Kind: KindText, Text: b, Style: style}
}

func LineBreak() Fragment { return Fragment{Kind: KindLineBreak} }
func PageBreak() Fragment { return Fragment{Kind: KindPageBreak} }
func Hr() Fragment        { return Fragment{Kind: KindHr} }

func Image(url string) Fragment { return Fragment{Kind: KindImage, ImageURL: url} }

func Frame(name, layout string) Fragment {
	return Fragment{Kind: KindFrame, FrameName: name, FrameLayout: layout}
}

func Effect(kind EffectKind) Fragment { return Fragment{Kind: KindEffect, Effect: kind} }

func Telnet(ev TelnetEvent) Fragment { return Fragment{Kind: KindTelnet, Telnet: ev} }

func MxpEntitySet(name, value string) Fragment {
	return Fragment{Kind: KindMxpEntity, EntityLifecycle: EntitySet, EntityName: name, EntityValue: value}
}

func MxpEntityUnset(name string) Fragment {
	return Fragment{Kind: KindMxpEntity, EntityLifecycle: EntityUnset, EntityName: name}
}

func MxpError(kind MxpErrorKind) Fragment { return Fragment{Kind: KindMxpError, MxpError: kind} }

// ControlKind distinguishes the handful of OSC-driven side effects that
// have no place in Style but still need to reach the UI (spec §4.5).
type ControlKind int

const (
	ControlTitle ControlKind = iota
	ControlIcon
	ControlPalette
)

// Control is the payload of a KindControl fragment: a window title/icon
// change or a palette-index color assignment from an OSC sequence.
func Control(kind ControlKind, value string) Fragment {
	return Fragment{Kind: KindControl, ControlKind: kind, ControlValue: value}
}

// ControlPaletteSet builds the payload of a KindControl/ControlPalette
// fragment when the OSC 4 index is known (rather than a bare query).
func ControlPaletteSet(index int, color Color) Fragment {
	return Fragment{Kind: KindControl, ControlKind: ControlPalette, ControlIndex: index, ControlColor: color}
}
