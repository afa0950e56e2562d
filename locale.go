package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lang/*.yaml
var bundledLang embed.FS

type Locale struct {
	translations map[string]string
	locale       string
}

var globalLocale *Locale

// InitLocale initializes the global locale system
func InitLocale() error {
	locale := DetectSystemLocale()

	l, err := LoadLocale(locale)
	if err != nil {
		fmt.Printf("Warning: Failed to load locale '%s', falling back to en_US: %v\n", locale, err)
		l, err = LoadLocale("en_US")
		if err != nil {
			return fmt.Errorf("failed to load fallback locale en_US: %w", err)
		}
	}

	globalLocale = l
	return nil
}

// DetectSystemLocale reads LANG, LC_ALL then LC_MESSAGES ("en_US.UTF-8" -> "en_US").
func DetectSystemLocale() string {
	for _, env := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		if v := os.Getenv(env); v != "" {
			code, _, _ := strings.Cut(v, ".")
			if code != "" && code != "C" && code != "POSIX" {
				return code
			}
		}
	}
	return "en_US"
}

// LoadLocale loads lang/<locale>.yaml from next to the executable, falling
// back to the copy bundled into the binary.
func LoadLocale(locale string) (*Locale, error) {
	if exePath, err := os.Executable(); err == nil {
		if l, err := loadLocaleFrom(filepath.Join(filepath.Dir(exePath), "lang"), locale); err == nil {
			return l, nil
		}
	}

	data, err := bundledLang.ReadFile("lang/" + locale + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no locale file for %s: %w", locale, err)
	}
	return parseLocale(locale, data)
}

func loadLocaleFrom(dir, locale string) (*Locale, error) {
	localeFile := filepath.Join(dir, locale+".yaml")
	data, err := os.ReadFile(localeFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read locale file %s: %w", localeFile, err)
	}
	return parseLocale(locale, data)
}

func parseLocale(locale string, data []byte) (*Locale, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse locale %s: %w", locale, err)
	}
	return &Locale{translations: translations, locale: locale}, nil
}

// T translates a key with optional fmt parameters. Unknown keys are
// returned as is.
func T(key string, params ...interface{}) string {
	if globalLocale == nil {
		return key
	}

	translation, ok := globalLocale.translations[key]
	if !ok {
		return key
	}
	if len(params) > 0 {
		return fmt.Sprintf(translation, params...)
	}
	return translation
}

// GetLocale returns the current locale code (e.g., "en_US", "ru_RU")
func GetLocale() string {
	if globalLocale == nil {
		return "en_US"
	}
	return globalLocale.locale
}
