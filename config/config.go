// Package config resolves the on-disk configuration directory and loads
// the transformer.Config file from it (SPEC_FULL §1 "Configuration"),
// grounded on the teacher's XDG/APPDATA directory resolution
// (config/config.go) but renamed to this module's own app name and
// extended with a YAML loader for transformer.Config, following the
// same plain yaml.Unmarshal-into-struct pattern other_examples' BBS
// config loader uses for its own server settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/transformer"
	"gopkg.in/yaml.v3"
)

// Dir returns the mudtransform configuration directory. Respects
// XDG_CONFIG_HOME on Unix, APPDATA on Windows.
func Dir() string {
	var base string

	if runtime.GOOS == "windows" {
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	} else {
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(base, "mudtransform")
}

// Path returns the path to the on-disk transformer.Config file.
func Path() string {
	return filepath.Join(Dir(), "mudtransform.yaml")
}

// fileConfig mirrors transformer.Config with YAML tags and string-keyed
// forms for the fields that don't serialize cleanly (the MXP mode enum,
// the 16-entry color override, the telnet option allowlist), the way a
// hand-authored settings file would spell them rather than their wire
// encodings.
type fileConfig struct {
	UseMXP                 string   `yaml:"use_mxp"`
	DisableCompression     bool     `yaml:"disable_compression"`
	DisableUTF8            bool     `yaml:"disable_utf8"`
	ConvertGaToNewline     bool     `yaml:"convert_ga_to_newline"`
	NoEchoOff              bool     `yaml:"no_echo_off"`
	NAWS                   bool     `yaml:"naws"`
	ScreenReader           bool     `yaml:"screen_reader"`
	SSL                    bool     `yaml:"ssl"`
	IgnoreMxpColors        bool     `yaml:"ignore_mxp_colors"`
	TerminalIdentification string   `yaml:"terminal_identification"`
	AppName                string   `yaml:"app_name"`
	Version                string   `yaml:"version"`
	Player                 string   `yaml:"player"`
	Password               string   `yaml:"password"`
	Supports               uint32   `yaml:"supports"`
	Colors                 []string `yaml:"colors,omitempty"`
	Will                   []int    `yaml:"will,omitempty"`
}

var useMXPNames = map[string]transformer.UseMXP{
	"never":   transformer.MXPNever,
	"command": transformer.MXPCommand,
	"query":   transformer.MXPQuery,
	"always":  transformer.MXPAlways,
}

func useMXPName(v transformer.UseMXP) string {
	for name, val := range useMXPNames {
		if val == v {
			return name
		}
	}
	return "query"
}

// Load reads and parses the YAML config file at path, falling back to
// transformer.Default() for any field the file doesn't set. A missing
// file is not an error: it returns the default configuration.
func Load(path string) (transformer.Config, error) {
	cfg := transformer.Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	fc := fileConfig{NAWS: cfg.NAWS}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if fc.UseMXP != "" {
		if v, ok := useMXPNames[fc.UseMXP]; ok {
			cfg.UseMXP = v
		}
	}
	cfg.DisableCompression = fc.DisableCompression
	cfg.DisableUTF8 = fc.DisableUTF8
	cfg.ConvertGaToNewline = fc.ConvertGaToNewline
	cfg.NoEchoOff = fc.NoEchoOff
	cfg.NAWS = fc.NAWS
	cfg.ScreenReader = fc.ScreenReader
	cfg.SSL = fc.SSL
	cfg.IgnoreMxpColors = fc.IgnoreMxpColors
	if fc.TerminalIdentification != "" {
		cfg.TerminalIdentification = fc.TerminalIdentification
	}
	if fc.AppName != "" {
		cfg.AppName = fc.AppName
	}
	if fc.Version != "" {
		cfg.Version = fc.Version
	}
	cfg.Player = fc.Player
	cfg.Password = fc.Password
	if fc.Supports != 0 {
		cfg.Supports = fc.Supports
	}
	if len(fc.Colors) == 16 {
		var arr [16]fragment.Color
		ok := true
		for i, hex := range fc.Colors {
			c, perr := parseHexColor(hex)
			if perr != nil {
				ok = false
				break
			}
			arr[i] = c
		}
		if ok {
			cfg.Colors = &arr
		}
	}
	if len(fc.Will) > 0 {
		allow := make(map[byte]bool, len(fc.Will))
		for _, opt := range fc.Will {
			allow[byte(opt)] = true
		}
		cfg.Will = allow
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory if
// necessary.
func Save(path string, cfg transformer.Config) error {
	fc := fileConfig{
		UseMXP:                 useMXPName(cfg.UseMXP),
		DisableCompression:     cfg.DisableCompression,
		DisableUTF8:            cfg.DisableUTF8,
		ConvertGaToNewline:     cfg.ConvertGaToNewline,
		NoEchoOff:              cfg.NoEchoOff,
		NAWS:                   cfg.NAWS,
		ScreenReader:           cfg.ScreenReader,
		SSL:                    cfg.SSL,
		IgnoreMxpColors:        cfg.IgnoreMxpColors,
		TerminalIdentification: cfg.TerminalIdentification,
		AppName:                cfg.AppName,
		Version:                cfg.Version,
		Player:                 cfg.Player,
		Password:               cfg.Password,
		Supports:               cfg.Supports,
	}
	if cfg.Colors != nil {
		fc.Colors = make([]string, 16)
		for i, c := range cfg.Colors {
			fc.Colors[i] = fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
		}
	}
	for opt := range cfg.Will {
		fc.Will = append(fc.Will, int(opt))
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

func parseHexColor(s string) (fragment.Color, error) {
	if len(s) != 7 || s[0] != '#' {
		return fragment.Color{}, fmt.Errorf("config: invalid color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return fragment.Color{}, fmt.Errorf("config: invalid color %q: %w", s, err)
	}
	return fragment.RgbColor(r, g, b), nil
}
