package theme

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"chat-widget/internal/kv"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

func Parse(s string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case Light:
		return Light, true
	case Dark:
		return Dark, true
	}
	return "", false
}

func (t Theme) Toggle() Theme {
	if t == Light {
		return Dark
	}
	return Light
}

// Preference answers the system-level "prefers dark colour scheme" query.
type Preference interface {
	PrefersDark() bool
}

type PreferenceFunc func() bool

func (f PreferenceFunc) PrefersDark() bool { return f() }

// EnvPreference honours an explicit override ("light"/"dark") and otherwise reads the
// terminal background from COLORFGBG ("fg;bg", bg 0-6 or 8 is a dark palette entry).
type EnvPreference struct {
	Override string
}

func (p EnvPreference) PrefersDark() bool {
	if t, ok := Parse(p.Override); ok {
		return t == Dark
	}
	v := os.Getenv("COLORFGBG")
	if v == "" {
		return false
	}
	parts := strings.Split(v, ";")
	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return false
	}
	return (bg >= 0 && bg <= 6) || bg == 8
}

// Load reads the stored theme. When nothing valid is stored the preference picks the default;
// it is consulted only in that case.
func Load(slots kv.Store, key string, pref Preference) Theme {
	if slots != nil {
		v, err := slots.Get(key)
		if err == nil {
			if t, ok := Parse(v); ok {
				return t
			}
			log.Printf("theme: ignoring invalid stored value %q", v)
		} else if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("theme: failed to read %s: %v", key, err)
		}
	}
	if pref != nil && pref.PrefersDark() {
		return Dark
	}
	return Light
}

func Save(slots kv.Store, key string, t Theme) {
	if slots == nil {
		return
	}
	if err := slots.Set(key, string(t)); err != nil {
		log.Printf("theme: failed to persist %s: %v", key, err)
	}
}
