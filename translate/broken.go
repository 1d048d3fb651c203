package translate

import "strings"

const maxRepeats = 5

// IsBrokenTranslation reports whether text looks like degenerate model output:
// empty, one character repeated more than maxRepeats times in a row, or a
// two-character sequence stuttering at least maxRepeats times ("ababababab",
// ". . . . . ."). Small translation models produce these on inputs they
// cannot handle; the caller substitutes a failure marker instead of caching.
func IsBrokenTranslation(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}

	runes := []rune(text)

	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run > maxRepeats {
				return true
			}
		} else {
			run = 1
		}
	}

	// Period-2 stutter: runes repeating with a two-rune cycle.
	run = 2
	for i := 2; i < len(runes); i++ {
		if runes[i] == runes[i-2] {
			run++
			if run >= 2*maxRepeats {
				return true
			}
		} else {
			run = 2
		}
	}

	return false
}
