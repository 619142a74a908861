package analyzer

import (
	"fmt"
	"strings"
)

// Language is the natural language a review is written in (and replies are drafted in).
type Language string

const DefaultLanguage Language = "English"

// Languages is the fixed selectable set.
var Languages = []Language{
	"English",
	"Spanish",
	"French",
	"German",
	"Italian",
	"Portuguese",
	"Dutch",
	"Japanese",
	"Korean",
	"Chinese",
	"Hindi",
	"Arabic",
}

// ParseLanguage resolves a language name case-insensitively. Empty input yields DefaultLanguage.
func ParseLanguage(raw string) (Language, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLanguage, nil
	}
	for _, l := range Languages {
		if strings.EqualFold(string(l), raw) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", raw)
}

func (l Language) String() string {
	if l == "" {
		return string(DefaultLanguage)
	}
	return string(l)
}
