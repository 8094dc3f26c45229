package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Transcription services often report a lowercase English name instead of a
// code; ISO 639-2/B codes are not understood by the tag parser.
var aliases = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"fre":        "fr",
	"ger":        "de",
	"chi":        "zh",
	"dut":        "nl",
}

// ToISO2 converts a language code, BCP 47 tag, or English language name to
// its ISO 639-1 code. It returns "" for empty or unrecognized input.
func ToISO2(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if code, ok := aliases[value]; ok {
		return code
	}
	tag, err := xlanguage.Parse(value)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No || base.String() == "und" {
		return ""
	}
	return base.String()
}

// Normalize maps value through ToISO2, keeping the trimmed lowercase input
// when it is not recognized.
func Normalize(value string) string {
	if code := ToISO2(value); code != "" {
		return code
	}
	return strings.ToLower(strings.TrimSpace(value))
}

// DisplayName returns the English name for a language code, or the
// uppercased input when unrecognized.
func DisplayName(value string) string {
	code := ToISO2(value)
	if code == "" {
		if strings.TrimSpace(value) == "" {
			return "Unknown"
		}
		return strings.ToUpper(strings.TrimSpace(value))
	}
	return display.English.Languages().Name(xlanguage.Make(code))
}
