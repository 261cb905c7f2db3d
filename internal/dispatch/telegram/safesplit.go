package telegram

import "unicode/utf8"

// safeSplit cuts s at a UTF-8 rune boundary no further than limit bytes
// in, so an oversized OTP body never corrupts a multi-byte character.
// Grounded on the teacher's safeSplit in message_sender.go.
func safeSplit(s string, limit int) (chunk, remainder string) {
	if len(s) <= limit {
		return s, ""
	}

	splitIndex := limit
	for splitIndex > 0 && !utf8.RuneStart(s[splitIndex]) {
		splitIndex--
	}
	if splitIndex == 0 {
		return s[:limit], s[limit:]
	}
	return s[:splitIndex], s[splitIndex:]
}
