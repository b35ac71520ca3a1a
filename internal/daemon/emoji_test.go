package daemon

import "testing"

func TestParseAIResponse_Directives(t *testing.T) {
	emoji, text := parseAIResponse("Emoji: 📅\nInsight: Nothing on your plate — enjoy the quiet.")
	if emoji != "📅" {
		t.Errorf("emoji = %q, want 📅", emoji)
	}
	if text != "Nothing on your plate — enjoy the quiet." {
		t.Errorf("text = %q", text)
	}
}

func TestParseAIResponse_EmptyEmojiDirective(t *testing.T) {
	emoji, text := parseAIResponse("Emoji:\nInsight: Busy afternoon ahead.")
	if emoji != defaultEmoji {
		t.Errorf("emoji = %q, want default", emoji)
	}
	if text != "Busy afternoon ahead." {
		t.Errorf("text = %q", text)
	}
}

func TestParseAIResponse_ScanFallback(t *testing.T) {
	emoji, text := parseAIResponse("☔ Take an umbrella this afternoon.")
	if emoji != "☔" {
		t.Errorf("emoji = %q, want ☔", emoji)
	}
	if text != "Take an umbrella this afternoon." {
		t.Errorf("text = %q", text)
	}
}

func TestParseAIResponse_NoEmojiAnywhere(t *testing.T) {
	emoji, text := parseAIResponse("Plain text with no symbols.")
	if emoji != defaultEmoji {
		t.Errorf("emoji = %q, want default", emoji)
	}
	if text != "Plain text with no symbols." {
		t.Errorf("text = %q", text)
	}
}

func TestParseAIResponse_EmptyBody(t *testing.T) {
	emoji, text := parseAIResponse("")
	if emoji != defaultEmoji {
		t.Errorf("emoji = %q, want default", emoji)
	}
	if text != fallbackText {
		t.Errorf("text = %q, want canned fallback", text)
	}
}

func TestExtractEmoji_RangeBoundaries(t *testing.T) {
	// First and last codepoints of the documented ranges must register.
	tests := []struct {
		input string
		want  string
	}{
		{"\U0001F300 cyclone", "\U0001F300"},
		{"⛿ boundary", "⛿"},
		{"\U0001F9FF nazar", "\U0001F9FF"},
		{"☀ sun", "☀"},
	}
	for _, tt := range tests {
		emoji, _, ok := extractEmoji(tt.input)
		if !ok || emoji != tt.want {
			t.Errorf("extractEmoji(%q) = (%q, %v), want %q", tt.input, emoji, ok, tt.want)
		}
	}
}

func TestExtractEmoji_VariationSelectorSurvives(t *testing.T) {
	// ☔ followed by VS16 must come out as one grapheme, not a bare base.
	input := "☔️ Rain incoming"
	emoji, rest, ok := extractEmoji(input)
	if !ok {
		t.Fatal("emoji not found")
	}
	if emoji != "☔️" {
		t.Errorf("emoji = %q, want base plus variation selector", emoji)
	}
	if rest != "Rain incoming" {
		t.Errorf("rest = %q", rest)
	}
}

func TestExtractEmoji_ZWJSequence(t *testing.T) {
	// Woman technologist: 1F469 ZWJ 1F4BB.
	input := "\U0001F469‍\U0001F4BB coding day"
	emoji, rest, ok := extractEmoji(input)
	if !ok {
		t.Fatal("emoji not found")
	}
	if emoji != "\U0001F469‍\U0001F4BB" {
		t.Errorf("emoji = %q, want the full ZWJ sequence", emoji)
	}
	if rest != "coding day" {
		t.Errorf("rest = %q", rest)
	}
}

func TestExtractEmoji_NoEmoji(t *testing.T) {
	if _, _, ok := extractEmoji("plain ascii"); ok {
		t.Error("plain text should not yield an emoji")
	}
}
