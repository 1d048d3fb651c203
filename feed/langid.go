package feed

import "github.com/RadhiFadlillah/whatlanggo"

// iso639-3 to iso639-1 for the languages the pipeline serves.
var isoShort = map[string]string{
	"eng": "en",
	"rus": "ru",
	"deu": "de",
	"fra": "fr",
}

// DetectLanguage guesses the language of text when a feed declares none.
// Returns an iso639-1 tag for supported languages, or "" when detection is
// unreliable or the language is outside the supported set.
func DetectLanguage(text string) string {
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return isoShort[whatlanggo.LangToString(info.Lang)]
}
