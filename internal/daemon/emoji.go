package daemon

import "strings"

// Emoji codepoint ranges the response parser recognizes when the model
// ignores the Emoji: directive.
var emojiRanges = [][2]rune{
	{0x1F300, 0x1F6FF}, // pictographs, transport
	{0x1F700, 0x1FAFF}, // alchemical through extended-A
	{0x2600, 0x26FF},   // misc symbols
	{0x2700, 0x27BF},   // dingbats
	{0x1F900, 0x1F9FF}, // supplemental symbols
}

const (
	defaultEmoji  = "🤖"
	fallbackText  = "AI analysis complete - check your schedule and priorities"
	variationSel  = 0xFE0F
	zeroWidthJoin = 0x200D
	skinToneLow   = 0x1F3FB
	skinToneHigh  = 0x1F3FF
)

func isEmojiRune(r rune) bool {
	for _, rng := range emojiRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}

// extractEmoji returns the first emoji grapheme in s and s with that
// grapheme removed. Variation selectors, skin tones and ZWJ sequences
// stay attached to their base so one visual emoji survives extraction.
func extractEmoji(s string) (string, string, bool) {
	runes := []rune(s)
	for i, r := range runes {
		if !isEmojiRune(r) {
			continue
		}
		end := i + 1
		for end < len(runes) {
			next := runes[end]
			switch {
			case next == variationSel, next >= skinToneLow && next <= skinToneHigh:
				end++
			case next == zeroWidthJoin && end+1 < len(runes) && isEmojiRune(runes[end+1]):
				end += 2
			default:
				goto done
			}
		}
	done:
		emoji := string(runes[i:end])
		rest := strings.TrimSpace(string(runes[:i]) + string(runes[end:]))
		return emoji, rest, true
	}
	return "", s, false
}

// parseAIResponse extracts (emoji, insight) from the model output.
// Lines prefixed Emoji:/Insight: win; otherwise the first emoji in the
// body is pulled out and the remainder becomes the text. An empty result
// is replaced with canned fallback text.
func parseAIResponse(content string) (string, string) {
	emoji := defaultEmoji
	insight := content
	sawDirectives := false

	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "Emoji:"); ok {
			if trimmed := strings.TrimSpace(after); trimmed != "" {
				emoji = trimmed
			}
			sawDirectives = true
		} else if after, ok := strings.CutPrefix(line, "Insight:"); ok {
			insight = strings.TrimSpace(after)
			sawDirectives = true
		}
	}

	if !sawDirectives && content != "" {
		if found, rest, ok := extractEmoji(content); ok {
			emoji = found
			insight = rest
		}
	}

	insight = strings.TrimSpace(insight)
	if insight == "" {
		insight = fallbackText
	}
	return emoji, insight
}
