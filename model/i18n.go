package model

import "strings"

// Language selects which half of a bilingual Text is rendered.
type Language uint8

const (
	English Language = iota
	Korean
)

// ParseLanguage accepts en/eng/english and ko/kor/korean; anything else is English.
func ParseLanguage(token string) Language {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "ko", "kor", "korean":
		return Korean
	}
	return English
}

// Code returns the ISO 639-1 code.
func (l Language) Code() string {
	if l == Korean {
		return "ko"
	}
	return "en"
}

// Text is a bilingual string. Both halves are always carried so a report can be
// re-rendered in the other language without re-running analysis.
type Text struct {
	EN string `json:"en"`
	KO string `json:"ko"`
}

// T builds a Text.
func T(en, ko string) Text { return Text{EN: en, KO: ko} }

// In returns the text for lang, falling back to the other language when empty.
func (t Text) In(lang Language) string {
	if lang == Korean {
		if t.KO != "" {
			return t.KO
		}
		return t.EN
	}
	if t.EN != "" {
		return t.EN
	}
	return t.KO
}

// IsZero reports whether both halves are empty.
func (t Text) IsZero() bool { return t.EN == "" && t.KO == "" }

// Append concatenates another bilingual fragment onto both halves.
func (t Text) Append(o Text) Text {
	return Text{EN: t.EN + o.EN, KO: t.KO + o.KO}
}
