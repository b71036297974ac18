package mxp

import (
	"strconv"
	"strings"

	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/span"
)

// FragmentSink receives structured output fragments produced as a side
// effect of a tag action or a parse error (spec §3 "MxpError", §4.4).
type FragmentSink interface {
	Emit(fragment.Fragment)
}

// InputSink receives outbound bytes queued as a side effect of a tag
// action, e.g. a <VERSION> or <SUPPORT> identify string.
type InputSink interface {
	WriteInput([]byte)
}

// EntityAction distinguishes the modifier keyword on a `!ENTITY`
// definition (spec §4.4 "Definitions").
type EntityAction int

const (
	EntityActionSet EntityAction = iota
	EntityActionAdd
	EntityActionRemove
	EntityActionDelete
)

// SupportBit enumerates the feature categories a <SUPPORT> identify reply
// reports on. The wire text itself is this implementation's own choice
// (spec §9 Open Question), not a contract with any specific server.
type SupportBit uint32

const (
	SupportBold SupportBit = 1 << iota
	SupportItalic
	SupportUnderline
	SupportColor
	SupportFont
	SupportSend
	SupportHyperlink
	SupportSound
	SupportMusic
	SupportGauge
	SupportFrame
	SupportImage
)

// AllSupportBits is the reply a client that implements every built-in
// action in this package sends.
const AllSupportBits = SupportBold | SupportItalic | SupportUnderline | SupportColor |
	SupportFont | SupportSend | SupportHyperlink | SupportSound | SupportMusic |
	SupportGauge | SupportFrame | SupportImage

var supportNames = []struct {
	bit  SupportBit
	name string
}{
	{SupportBold, "B"}, {SupportItalic, "I"}, {SupportUnderline, "U"},
	{SupportColor, "COLOR"}, {SupportFont, "FONT"}, {SupportSend, "SEND"},
	{SupportHyperlink, "A"}, {SupportSound, "SOUND"}, {SupportMusic, "MUSIC"},
	{SupportGauge, "GAUGE"}, {SupportFrame, "FRAME"}, {SupportImage, "IMAGE"},
}

// SupportReply renders the <SUPPORT> identify string: one +NAME/-NAME
// token per known category in ascending bit order, wrapped in the MXP
// line-tag escape so the server's own MXP parser reads it back as a tag.
func SupportReply(supports SupportBit) []byte {
	var b strings.Builder
	b.WriteString("\x1b[1z<SUPPORTS")
	for _, s := range supportNames {
		if supports&s.bit != 0 {
			b.WriteString(" +" + s.name)
		} else {
			b.WriteString(" -" + s.name)
		}
	}
	b.WriteString(">\r\n")
	return []byte(b.String())
}

// Machine is the semantic layer of the MXP tokenizer: mode state, the
// user-defined element/entity/line-tag tables, the active-tags stack, and
// the span list they drive (spec §4.4).
type Machine struct {
	Mode      Mode
	savedMode Mode
	hasSaved  bool

	Entities *EntityMap
	Elements map[string]*ElementDefinition
	LineTags map[int]*LineTagEntry
	Supports SupportBit

	activeTags []Tag
	Spans      *span.List

	// Identity fields a <VERSION>/<USER>/<PASSWORD> tag answers with
	// (spec §6 Config "app_name, version", "player, password"), set by
	// the Transformer from its Config rather than read from the tag's
	// own arguments — matching original_source's
	// `input_mxp_auth(&mut self.input, &self.config.player)`.
	AppName  string
	Version  string
	Player   string
	Password string

	frag  FragmentSink
	input InputSink
}

// NewMachine creates a Machine in OPEN mode with empty definition tables.
func NewMachine(frag FragmentSink, input InputSink) *Machine {
	return &Machine{
		Mode:     ModeOpen,
		Entities: NewEntityMap(),
		Elements: map[string]*ElementDefinition{},
		LineTags: map[int]*LineTagEntry{},
		Supports: AllSupportBits,
		Spans:    span.New(),
		frag:     frag,
		input:    input,
	}
}

func (m *Machine) emit(f fragment.Fragment) {
	if m.frag != nil {
		m.frag.Emit(f)
	}
}

func (m *Machine) emitError(kind fragment.MxpErrorKind) {
	m.emit(fragment.MxpError(kind))
}

func (m *Machine) write(b []byte) {
	if m.input != nil {
		m.input.WriteInput(b)
	}
}

// SetMode applies a mode transition (spec §4.4 "Mode transitions").
// pendingText is the accumulated text under the current span, committed
// to an entity binding if leaving this mode closes a var-bound span.
func (m *Machine) SetMode(newMode Mode, pendingText string) {
	if newMode == ModeReset {
		m.softReset(pendingText)
		return
	}
	wasOpen := m.Mode.IsOpen()
	if newMode == ModeSecureOnce {
		m.savedMode = m.Mode
		m.hasSaved = true
	}
	m.Mode = newMode
	if wasOpen && !newMode.IsOpen() {
		dropped := m.closeAboveLastSecure()
		m.commitEntity(dropped, pendingText)
	}
}

// EndSecureOnce restores the mode saved when SECURE_ONCE was entered
// (spec §4.4). Nothing in this module calls it, so SECURE_ONCE stays in
// effect until the next mode change.
func (m *Machine) EndSecureOnce() {
	if m.hasSaved {
		m.Mode = m.savedMode
		m.hasSaved = false
	}
}

// softReset closes every active tag above the unbroken run of NoReset
// tags at the bottom of the stack (e.g. a wrapping <MXP>), and clears to
// OPEN mode (spec §4.4 "RESET"). A NoReset tag that sits above a
// resettable one (such as a <BR> opened inside <B>) is closed as well.
func (m *Machine) softReset(pendingText string) {
	keep := 0
	for keep < len(m.activeTags) && m.activeTags[keep].NoReset {
		keep++
	}
	dropped := m.truncateTagsTo(keep)
	m.commitEntity(dropped, pendingText)
	m.Mode = ModeOpen
	m.hasSaved = false
}

func (m *Machine) closeAboveLastSecure() []span.Truncated {
	last := -1
	for i, t := range m.activeTags {
		if t.Secure {
			last = i
		}
	}
	return m.truncateTagsTo(last + 1)
}

func (m *Machine) truncateTagsTo(n int) []span.Truncated {
	if n >= len(m.activeTags) {
		return nil
	}
	spanIdx := m.activeTags[n].SpanIndex
	dropped := m.Spans.Truncate(spanIdx)
	m.activeTags = m.activeTags[:n]
	return dropped
}

// commitEntity implements spec §4.3 "Truncation": if the topmost span
// dropped by a truncation carried an entity binding, its accumulated
// text becomes that entity's value.
func (m *Machine) commitEntity(dropped []span.Truncated, pendingText string) {
	if len(dropped) == 0 {
		return
	}
	top := dropped[0].Span
	if top.HasVar {
		m.Entities.Set(top.Variable, Entity{Kind: EntityPublished, Value: pendingText})
		m.emit(fragment.MxpEntitySet(top.Variable, pendingText))
	}
}

// OpenTag resolves and applies an opening tag (spec §4.4 "Opening tag
// resolution").
func (m *Machine) OpenTag(name string, positional []string, named map[string]string) {
	lname := strings.ToLower(name)
	secure := m.Mode.IsSecure()

	if bt, ok := lookupBuiltin(lname); ok {
		if !bt.Open && !secure {
			m.emitError(fragment.ErrElementWhenNotSecure)
		}
		m.activeTags = append(m.activeTags, Tag{Name: name, Secure: secure, NoReset: bt.NoReset, SpanIndex: m.Spans.Len()})
		m.applyAction(bt.Action, positional, named)
		return
	}

	if def, ok := m.Elements[lname]; ok {
		if !def.Open && !secure {
			m.emitError(fragment.ErrElementWhenNotSecure)
		}
		m.activeTags = append(m.activeTags, Tag{Name: name, Secure: secure, SpanIndex: m.Spans.Len()})
		if def.Gag {
			m.Spans.SetGag()
		}
		if def.Window != "" {
			m.Spans.SetWindow(def.Window)
		}
		if def.Fore != "" {
			if c, ok := resolveNamedOrHex(def.Fore); ok {
				m.Spans.SetForeground(c)
			}
		}
		if def.Back != "" {
			if c, ok := resolveNamedOrHex(def.Back); ok {
				m.Spans.SetBackground(c)
			}
		}
		if def.VariableName != "" {
			m.Spans.SetEntity(def.VariableName)
		}
		for _, item := range def.Items {
			args := m.substituteArgs(item.Args, positional, named)
			m.applyAction(item.Action, args, nil)
		}
		return
	}

	m.emitError(fragment.ErrUnknownElement)
}

func (m *Machine) substituteArgs(templates []string, positional []string, named map[string]string) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = m.substituteEntities(t, positional, named)
	}
	return out
}

// substituteEntities replaces &name; placeholders in a user element's
// argument template against the arguments supplied at the point of use
// (spec §4.4: "argument template decoded against the supplied arguments;
// attribute entities expand to supplied values").
func (m *Machine) substituteEntities(s string, positional []string, named map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], ';')
		if end < 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		name := s[i+1 : i+1+end]
		i += end + 2
		if v, ok := named[name]; ok {
			b.WriteString(v)
			continue
		}
		if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= len(positional) {
			b.WriteString(positional[n-1])
			continue
		}
		if v, ok := m.Entities.Decode(name); ok {
			b.WriteString(v)
			continue
		}
		b.WriteByte('&')
		b.WriteString(name)
		b.WriteByte(';')
	}
	return b.String()
}

// CloseTag applies the closing-tag rule (spec §4.4). pendingText is the
// accumulated text under the current span, committed to an entity
// binding if the topmost closed span carried one.
func (m *Machine) CloseTag(name, pendingText string) {
	lname := strings.ToLower(name)
	idx := -1
	for i := len(m.activeTags) - 1; i >= 0; i-- {
		if strings.ToLower(m.activeTags[i].Name) == lname {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.emitError(fragment.ErrOpenTagNotThere)
		return
	}
	if !m.Mode.IsSecure() && m.activeTags[idx].Secure {
		m.emitError(fragment.ErrTagOpenedInSecureMode)
		return
	}
	for i := idx + 1; i < len(m.activeTags); i++ {
		if m.activeTags[i].Secure {
			m.emitError(fragment.ErrOpenTagBlockedBySecureTag)
			return
		}
	}
	dropped := m.truncateTagsTo(idx)
	m.commitEntity(dropped, pendingText)
}

// argVal looks a value up by any of the given named-keyword aliases
// first, falling back to a fixed positional slot.
func argVal(named map[string]string, positional []string, idx int, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := named[k]; ok {
			return v, true
		}
	}
	if idx >= 0 && idx < len(positional) {
		return positional[idx], true
	}
	return "", false
}

func resolveNamedOrHex(v string) (fragment.Color, bool) {
	if strings.HasPrefix(v, "#") && len(v) == 7 {
		r, err1 := strconv.ParseUint(v[1:3], 16, 8)
		g, err2 := strconv.ParseUint(v[3:5], 16, 8)
		b, err3 := strconv.ParseUint(v[5:7], 16, 8)
		if err1 == nil && err2 == nil && err3 == nil {
			return fragment.RgbColor(byte(r), byte(g), byte(b)), true
		}
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 255 {
		return fragment.AnsiColor(uint8(n)), true
	}
	if c, ok := NamedColors[strings.ToLower(v)]; ok {
		return c, true
	}
	return fragment.Color{}, false
}

// applyAction performs the documented side effect of one built-in atom
// (spec §4.4 "For each action, perform the documented side effects").
func (m *Machine) applyAction(action ActionKind, positional []string, named map[string]string) {
	switch action {
	case ActionBold:
		m.Spans.SetFlag(fragment.FlagBold)
	case ActionItalic:
		m.Spans.SetFlag(fragment.FlagItalic)
	case ActionUnderline:
		m.Spans.SetFlag(fragment.FlagUnderline)
	case ActionSmall:
		m.Spans.SetSize(-1)
	case ActionTt:
		m.Spans.SetFont("monospace")
	case ActionColor:
		if fg, ok := argVal(named, positional, 0, "fore"); ok {
			if c, ok := resolveNamedOrHex(fg); ok {
				m.Spans.SetForeground(c)
			}
		}
		if bg, ok := argVal(named, positional, 1, "back"); ok {
			if c, ok := resolveNamedOrHex(bg); ok {
				m.Spans.SetBackground(c)
			}
		}
	case ActionFont:
		if face, ok := argVal(named, positional, 0, "face"); ok {
			m.Spans.SetFont(face)
		}
		if size, ok := argVal(named, positional, 1, "size"); ok {
			if n, err := strconv.Atoi(size); err == nil {
				m.Spans.SetSize(n)
			}
		}
		if fg, ok := argVal(named, positional, 2, "color"); ok {
			if c, ok := resolveNamedOrHex(fg); ok {
				m.Spans.SetForeground(c)
			}
		}
	case ActionSend, ActionHyperlink:
		href, _ := argVal(named, positional, 0, "href", "xch_cmd")
		hint, hasHint := argVal(named, positional, 1, "hint")
		sendTo := fragment.SendToWorld
		if v, ok := named["sendto"]; ok && strings.EqualFold(v, "input") {
			sendTo = fragment.SendToInput
		} else if action == ActionHyperlink {
			sendTo = fragment.SendToInternet
		}
		m.Spans.SetAction(fragment.Link{Action: href, Hint: hint, HasHint: hasHint, SendTo: sendTo})
	case ActionBr:
		m.emit(fragment.LineBreak())
	case ActionHr:
		m.emit(fragment.Hr())
	case ActionH1, ActionH2, ActionH3, ActionH4, ActionH5, ActionH6:
		m.Spans.SetHeading(int(action-ActionH1) + 1)
	case ActionFrame:
		name, _ := argVal(named, positional, 0, "name")
		layout, _ := argVal(named, positional, 1, "action")
		m.emit(fragment.Frame(name, layout))
	case ActionImage:
		src, _ := argVal(named, positional, 0, "src", "fname")
		m.emit(fragment.Image(src))
	case ActionSound:
		m.emit(fragment.Effect(fragment.EffectSound))
	case ActionMusic:
		m.emit(fragment.Effect(fragment.EffectMusic))
	case ActionGauge:
		m.emit(fragment.Effect(fragment.EffectGauge))
	case ActionStat:
		m.emit(fragment.Effect(fragment.EffectStat))
	case ActionExpire:
		m.emit(fragment.Effect(fragment.EffectExpire))
	case ActionFilter:
		m.emit(fragment.Effect(fragment.EffectFilter))
	case ActionRelocate:
		m.emit(fragment.Effect(fragment.EffectRelocate))
	case ActionVar:
		if name, ok := argVal(named, positional, 0, "variable"); ok {
			m.Spans.SetEntity(name)
		}
	case ActionAfk:
		m.write([]byte("AFK\r\n"))
	case ActionVersion:
		m.write([]byte("\x1b[1z<VERSION CLIENT=" + m.AppName + " VERSION=" + m.Version + " REGISTERED=NO>\r\n"))
	case ActionSupport:
		m.write(SupportReply(m.Supports))
	case ActionUser:
		m.write([]byte(m.Player + "\r\n"))
	case ActionPassword:
		m.write([]byte(m.Password + "\r\n"))
	case ActionReset:
		m.SetMode(ModeReset, "")
	case ActionMxp:
		for _, p := range positional {
			switch strings.ToUpper(p) {
			case "OFF":
				m.SetMode(ModeLocked, "")
			case "ON":
				m.SetMode(ModeOpen, "")
			}
		}
	case ActionDest:
		if w, ok := argVal(named, positional, 0, "window"); ok {
			m.Spans.SetWindow(w)
		}
	case ActionP:
		m.Spans.SetFormat(span.FormatParagraph)
	case ActionPre:
		m.Spans.SetFormat(span.FormatPre)
	case ActionScript:
		m.Spans.SetFormat(span.FormatScript)
	case ActionUl:
		m.Spans.SetList("ul")
	case ActionOl:
		m.Spans.SetList("ol")
	case ActionLi:
		m.emit(fragment.LineBreak())
	}
}

// DefineElement registers or removes a user-defined element (`!ELEMENT
// ... [DELETE]`, spec §4.4 "Definitions").
func (m *Machine) DefineElement(def ElementDefinition, remove bool) {
	if !m.Mode.IsSecure() {
		m.emitError(fragment.ErrDefinitionWhenNotSecure)
		return
	}
	lname := strings.ToLower(def.Name)
	if remove {
		delete(m.Elements, lname)
		return
	}
	d := def
	m.Elements[lname] = &d
}

// DefineEntity applies a `!ENTITY` definition with ADD/REMOVE pipe-list
// semantics.
func (m *Machine) DefineEntity(name, value string, action EntityAction, publish bool, desc string) {
	if !m.Mode.IsSecure() {
		m.emitError(fragment.ErrDefinitionWhenNotSecure)
		return
	}
	switch action {
	case EntityActionDelete:
		m.Entities.Delete(name)
	case EntityActionAdd:
		m.Entities.Add(name, value)
	case EntityActionRemove:
		m.Entities.Remove(name, value)
	default:
		kind := EntityUser
		if publish {
			kind = EntityPublished
		}
		m.Entities.Set(name, Entity{Kind: kind, Value: value, Description: desc})
		if publish {
			m.emit(fragment.MxpEntitySet(name, value))
		}
	}
}

// DefineAttlist extends an existing element's attribute list
// (`!ATTLIST`).
func (m *Machine) DefineAttlist(name string, attrs []string) {
	if !m.Mode.IsSecure() {
		m.emitError(fragment.ErrDefinitionWhenNotSecure)
		return
	}
	def, ok := m.Elements[strings.ToLower(name)]
	if !ok {
		m.emitError(fragment.ErrUnknownElementInAttlist)
		return
	}
	def.Attributes = append(def.Attributes, attrs...)
}

// DefineTag updates a line-tag entry's display overrides (`!TAG`).
func (m *Machine) DefineTag(n int, entry LineTagEntry) {
	if !m.Mode.IsSecure() {
		m.emitError(fragment.ErrDefinitionWhenNotSecure)
		return
	}
	m.LineTags[n] = &entry
}

// ParseArgs splits a raw MXP tag body into positional tokens and
// name=value pairs (spec §4.4 "(positional, named, keyword-set)").
// Values may be bare, single-, or double-quoted.
func ParseArgs(body string) (positional []string, named map[string]string) {
	named = map[string]string{}
	i := 0
	for i < len(body) {
		for i < len(body) && isSpace(body[i]) {
			i++
		}
		if i >= len(body) {
			break
		}
		if body[i] == '\'' || body[i] == '"' {
			quote := body[i]
			i++
			start := i
			for i < len(body) && body[i] != quote {
				i++
			}
			positional = append(positional, body[start:i])
			if i < len(body) {
				i++
			}
			continue
		}
		start := i
		for i < len(body) && body[i] != '=' && !isSpace(body[i]) {
			i++
		}
		token := body[start:i]
		save := i
		for i < len(body) && isSpace(body[i]) {
			i++
		}
		if i < len(body) && body[i] == '=' {
			i++
			for i < len(body) && isSpace(body[i]) {
				i++
			}
			var val string
			if i < len(body) && (body[i] == '\'' || body[i] == '"') {
				quote := body[i]
				i++
				start = i
				for i < len(body) && body[i] != quote {
					i++
				}
				val = body[start:i]
				if i < len(body) {
					i++
				}
			} else {
				start = i
				for i < len(body) && !isSpace(body[i]) {
					i++
				}
				val = body[start:i]
			}
			named[strings.ToLower(token)] = val
		} else {
			i = save
			if token != "" {
				positional = append(positional, token)
			}
		}
	}
	return positional, named
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func splitName(body string) (string, string) {
	i := 0
	for i < len(body) && !isSpace(body[i]) {
		i++
	}
	j := i
	for j < len(body) && isSpace(body[j]) {
		j++
	}
	return body[:i], body[j:]
}

// tokenizerState mirrors the MXP-related phases of the top-level
// Transformer (MxpElement, MxpComment, MxpQuote) so the tokenizer can be
// driven byte-by-byte without the caller owning its own sub-states.
type tokenizerState int

const (
	tokenNormal tokenizerState = iota
	tokenElement
	tokenComment
	tokenQuote
)

// Tokenizer accumulates MXP markup text between `<` and the terminating
// `>`, classifies it, and dispatches to the Machine (spec §4.4 "Token
// phases" / "Token classification on >").
type Tokenizer struct {
	m     *Machine
	state tokenizerState
	buf   strings.Builder
	quote byte
}

// NewTokenizer creates a Tokenizer bound to m.
func NewTokenizer(m *Machine) *Tokenizer { return &Tokenizer{m: m} }

// Start begins collecting a new element at `<`.
func (t *Tokenizer) Start() {
	t.state = tokenElement
	t.buf.Reset()
}

// Active reports whether the tokenizer is mid-element.
func (t *Tokenizer) Active() bool { return t.state != tokenNormal }

// Feed processes one byte while the tokenizer is active. pendingText is
// forwarded to CloseTag/SetMode for entity-binding commits.
func (t *Tokenizer) Feed(c byte, pendingText string) {
	switch t.state {
	case tokenComment:
		t.buf.WriteByte(c)
		if strings.HasSuffix(t.buf.String(), "-->") {
			t.state = tokenNormal
			t.buf.Reset()
		}
	case tokenQuote:
		t.buf.WriteByte(c)
		if c == t.quote {
			t.state = tokenElement
		}
	case tokenElement:
		switch c {
		case '<':
			t.m.emitError(fragment.ErrUnterminatedElement)
			t.state = tokenNormal
			t.buf.Reset()
		case '\'', '"':
			t.quote = c
			t.state = tokenQuote
			t.buf.WriteByte(c)
		case '>':
			body := t.buf.String()
			t.state = tokenNormal
			t.buf.Reset()
			t.dispatch(body, pendingText)
		default:
			t.buf.WriteByte(c)
			if t.buf.Len() == 3 && t.buf.String() == "!--" {
				t.state = tokenComment
			}
		}
	}
}

func (t *Tokenizer) dispatch(body, pendingText string) {
	body = strings.TrimSpace(body)
	if body == "" {
		t.m.emitError(fragment.ErrEmptyElement)
		return
	}
	if strings.HasPrefix(body, "!--") {
		return
	}
	if body[0] == '!' {
		t.dispatchDefinition(body[1:])
		return
	}
	if body[0] == '/' {
		name := strings.TrimSpace(body[1:])
		if idx := strings.IndexAny(name, " \t"); idx >= 0 {
			t.m.emitError(fragment.ErrArgumentsToClosingTag)
			name = name[:idx]
		}
		if name == "" {
			t.m.emitError(fragment.ErrInvalidElementName)
			return
		}
		t.m.CloseTag(name, pendingText)
		return
	}
	name, rest := splitName(body)
	if name == "" {
		t.m.emitError(fragment.ErrInvalidElementName)
		return
	}
	positional, named := ParseArgs(rest)
	t.m.OpenTag(name, positional, named)
}

func (t *Tokenizer) dispatchDefinition(body string) {
	if !t.m.Mode.IsSecure() {
		t.m.emitError(fragment.ErrDefinitionWhenNotSecure)
		return
	}
	keyword, rest := splitName(body)
	switch strings.ToUpper(keyword) {
	case "ELEMENT", "EL":
		t.defineElement(rest)
	case "ENTITY", "EN":
		t.defineEntity(rest)
	case "ATTLIST", "ATT":
		t.defineAttlist(rest)
	case "TAG":
		t.defineTag(rest)
	default:
		t.m.emitError(fragment.ErrNoInbuiltDefinitionTag)
	}
}

func (t *Tokenizer) defineElement(rest string) {
	name, body := splitName(rest)
	if name == "" {
		t.m.emitError(fragment.ErrInvalidElementName)
		return
	}
	positional, named := ParseArgs(body)
	hasDelete := false
	if _, ok := named["delete"]; ok {
		hasDelete = true
	}
	def := ElementDefinition{Name: name}
	for _, atom := range positional {
		up := strings.ToUpper(atom)
		if up == "DELETE" {
			hasDelete = true
			continue
		}
		if up == "OPEN" {
			def.Open = true
			continue
		}
		if action, args, ok := parseAtom(atom); ok {
			def.Items = append(def.Items, ExpansionItem{Action: action, Args: args})
		}
	}
	if v, ok := named["att"]; ok {
		def.Attributes = strings.Fields(v)
	}
	if v, ok := named["tag"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			def.LineTag, def.HasLineTag = n, true
		}
	}
	if _, ok := named["open"]; ok {
		def.Open = true
	}
	t.m.DefineElement(def, hasDelete)
}

// parseAtom decodes one built-in-tag expansion template, e.g.
// "COLOR fore=red" or "<B>", into its action and argument templates.
func parseAtom(raw string) (ActionKind, []string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	name, body := splitName(s)
	bt, ok := lookupBuiltin(name)
	if !ok {
		return 0, nil, false
	}
	positional, named := ParseArgs(body)
	args := append([]string{}, positional...)
	for _, v := range named {
		args = append(args, v)
	}
	return bt.Action, args, true
}

func (t *Tokenizer) defineEntity(rest string) {
	name, body := splitName(rest)
	if name == "" {
		t.m.emitError(fragment.ErrInvalidEntityName)
		return
	}
	positional, named := ParseArgs(body)
	value := ""
	if len(positional) > 0 {
		value = positional[0]
	}
	action := EntityActionSet
	publish := false
	for i, p := range positional {
		if i == 0 {
			continue
		}
		switch strings.ToUpper(p) {
		case "PRIVATE":
			publish = false
		case "PUBLISH":
			publish = true
		case "ADD":
			action = EntityActionAdd
		case "REMOVE":
			action = EntityActionRemove
		case "DELETE":
			action = EntityActionDelete
		}
	}
	t.m.DefineEntity(name, value, action, publish, named["desc"])
}

func (t *Tokenizer) defineAttlist(rest string) {
	name, body := splitName(rest)
	t.m.DefineAttlist(name, strings.Fields(body))
}

func (t *Tokenizer) defineTag(rest string) {
	numStr, body := splitName(rest)
	n, err := strconv.Atoi(numStr)
	if err != nil {
		t.m.emitError(fragment.ErrInvalidDefinition)
		return
	}
	_, named := ParseArgs(body)
	entry := LineTagEntry{Enabled: true}
	entry.Window = named["window"]
	if _, ok := named["gag"]; ok {
		entry.Gag = true
	}
	entry.Fore = named["fore"]
	entry.Back = named["back"]
	if v, ok := named["enable"]; ok && strings.EqualFold(v, "no") {
		entry.Enabled = false
	}
	t.m.DefineTag(n, entry)
}

// EntityTokenizer accumulates an in-progress `&name;` reference and
// resolves it through the Machine's entity map and lookup tables (spec
// §4.4 "Entity decoding").
type EntityTokenizer struct {
	m   *Machine
	buf strings.Builder
}

// NewEntityTokenizer creates an EntityTokenizer bound to m.
func NewEntityTokenizer(m *Machine) *EntityTokenizer { return &EntityTokenizer{m: m} }

// Feed processes one byte of an in-progress entity reference. When it
// returns done == true the reference is complete and text is the
// replacement to append to the current output run.
func (e *EntityTokenizer) Feed(c byte) (text string, done bool) {
	if c != ';' {
		e.buf.WriteByte(c)
		return "", false
	}
	name := e.buf.String()
	e.buf.Reset()
	if name == "" {
		e.m.emitError(fragment.ErrInvalidEntityName)
		return "", true
	}
	if strings.HasPrefix(name, "#") {
		if v, ok := DecodeNumeric(name[1:]); ok {
			return v, true
		}
		e.m.emitError(fragment.ErrDisallowedEntityNumber)
		return "", true
	}
	if v, ok := e.m.Entities.Decode(name); ok {
		return v, true
	}
	e.m.emitError(fragment.ErrUnknownEntity)
	return "&" + name + ";", true
}
