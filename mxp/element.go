package mxp

import "strings"

// ActionKind enumerates the built-in MXP tag actions (spec §4.4).
type ActionKind int

const (
	ActionBold ActionKind = iota
	ActionUnderline
	ActionItalic
	ActionColor
	ActionFont
	ActionSend
	ActionHyperlink
	ActionBr
	ActionHr
	ActionH1
	ActionH2
	ActionH3
	ActionH4
	ActionH5
	ActionH6
	ActionFrame
	ActionImage
	ActionSound
	ActionMusic
	ActionGauge
	ActionStat
	ActionExpire
	ActionFilter
	ActionVar
	ActionAfk
	ActionSupport
	ActionVersion
	ActionUser
	ActionPassword
	ActionRelocate
	ActionReset
	ActionP
	ActionPre
	ActionUl
	ActionOl
	ActionLi
	ActionScript
	ActionSmall
	ActionTt
	ActionMxp
	ActionDest
)

// BuiltinTag describes one built-in element: its action, and whether it
// is usable outside secure mode and whether it resets line formatting.
type BuiltinTag struct {
	Action  ActionKind
	Open    bool // usable when mxp_mode is merely OPEN (not secure)
	NoReset bool // survives a <RESET> soft reset (spec §4.4 "RESET")
}

// builtinTags is the name -> definition table (spec §4.4, case-insensitive
// lookup performed by the caller).
var builtinTags = map[string]BuiltinTag{
	"b": {Action: ActionBold, Open: true}, "bold": {Action: ActionBold, Open: true},
	"u": {Action: ActionUnderline, Open: true}, "underline": {Action: ActionUnderline, Open: true},
	"i": {Action: ActionItalic, Open: true}, "italic": {Action: ActionItalic, Open: true},
	"c": {Action: ActionColor, Open: true}, "color": {Action: ActionColor, Open: true},
	"font": {Action: ActionFont, Open: true},
	"send": {Action: ActionSend}, "a": {Action: ActionHyperlink},
	"br": {Action: ActionBr, Open: true, NoReset: true},
	"hr": {Action: ActionHr, Open: true},
	"h1": {Action: ActionH1}, "h2": {Action: ActionH2}, "h3": {Action: ActionH3},
	"h4": {Action: ActionH4}, "h5": {Action: ActionH5}, "h6": {Action: ActionH6},
	"frame": {Action: ActionFrame}, "image": {Action: ActionImage}, "img": {Action: ActionImage},
	"sound": {Action: ActionSound}, "music": {Action: ActionMusic},
	"gauge": {Action: ActionGauge}, "stat": {Action: ActionStat},
	"expire": {Action: ActionExpire}, "filter": {Action: ActionFilter},
	"var": {Action: ActionVar}, "afk": {Action: ActionAfk},
	"support": {Action: ActionSupport}, "version": {Action: ActionVersion},
	"user": {Action: ActionUser}, "password": {Action: ActionPassword},
	"relocate": {Action: ActionRelocate}, "reset": {Action: ActionReset, Open: true, NoReset: true},
	"p": {Action: ActionP, Open: true}, "pre": {Action: ActionPre},
	"ul": {Action: ActionUl}, "ol": {Action: ActionOl}, "li": {Action: ActionLi},
	"script": {Action: ActionScript}, "small": {Action: ActionSmall, Open: true},
	"tt": {Action: ActionTt, Open: true}, "mxp": {Action: ActionMxp, NoReset: true},
	"dest": {Action: ActionDest}, "destination": {Action: ActionDest},
}

// ExpansionItem is one built-in atom a user-defined element opens,
// carrying its argument templates (spec §3 "ElementDefinition").
type ExpansionItem struct {
	Action ActionKind
	Args   []string // may reference &name; attribute entities
}

// ParseAs tags a user-defined element as feeding one of the room-context
// slots (spec §3).
type ParseAs int

const (
	ParseAsNone ParseAs = iota
	ParseAsRoomName
	ParseAsRoomDesc
	ParseAsRoomExit
	ParseAsRoomNum
	ParseAsPrompt
)

// ElementDefinition is a user-defined `<!ELEMENT>` (spec §3).
type ElementDefinition struct {
	Name         string
	Items        []ExpansionItem
	Attributes   []string
	LineTag      int
	HasLineTag   bool
	ParseAs      ParseAs
	VariableName string
	Open         bool
	Command      bool
	Fore, Back   string
	Gag          bool
	Window       string
}

// Tag is one entry on the active-tags stack (spec §4.4 "Tag record").
type Tag struct {
	Name      string
	Secure    bool
	NoReset   bool
	SpanIndex int
}

// lookupBuiltin finds a built-in tag by case-insensitive name.
func lookupBuiltin(name string) (BuiltinTag, bool) {
	t, ok := builtinTags[strings.ToLower(name)]
	return t, ok
}

// LineTagEntry is a registered line-tag override (spec §4.4 "!TAG").
type LineTagEntry struct {
	Window  string
	Gag     bool
	Fore    string
	Back    string
	Enabled bool
}
