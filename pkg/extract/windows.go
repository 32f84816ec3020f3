package extract

import (
	"strings"
	"unicode"
)

// Window is a token bounded slice of a text made of whole sentences.
// Start and End are byte offsets into the text that was split.
type Window struct {
	Start int
	End   int
	Text  string
}

// TokenCounter returns the number of tokens in s.
type TokenCounter func(s string) int

// SplitSentences returns the byte ranges of the sentences of text. A
// sentence ends at '.', '!' or '?' followed by whitespace or the end of the
// text, or at a blank line. Decimal numbers do not end a sentence.
func SplitSentences(text string) [][2]int {
	var out [][2]int
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		seg := text[start:end]
		trimmed := strings.TrimRightFunc(seg, unicode.IsSpace)
		if trimmed != "" {
			out = append(out, [2]int{start, start + len(trimmed)})
		}
		start = -1
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
				continue
			}
			start = i
		}

		switch c {
		case '.', '!', '?':
			next := i + 1
			if next == len(text) || isSpaceByte(text[next]) {
				flush(next)
			}
		case '\n':
			if isBlankLineAhead(text, i+1) {
				flush(i)
			}
		}
	}
	flush(len(text))

	return out
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isBlankLineAhead(text string, i int) bool {
	for ; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\r':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return false
}

// SplitWindows packs consecutive sentences into windows of at most
// maxTokens tokens. A single sentence longer than maxTokens forms its own
// window. maxTokens <= 0 returns the whole text as one window.
func SplitWindows(text string, maxTokens int, count TokenCounter) []Window {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sentences := SplitSentences(text)
	if maxTokens <= 0 || len(sentences) == 0 {
		return []Window{{Start: 0, End: len(text), Text: text}}
	}

	var windows []Window
	winStart, winEnd := -1, -1

	flush := func() {
		if winStart < 0 {
			return
		}
		windows = append(windows, Window{Start: winStart, End: winEnd, Text: text[winStart:winEnd]})
		winStart, winEnd = -1, -1
	}

	for _, s := range sentences {
		if winStart < 0 {
			winStart, winEnd = s[0], s[1]
			continue
		}
		if count(text[winStart:s[1]]) <= maxTokens {
			winEnd = s[1]
			continue
		}
		flush()
		winStart, winEnd = s[0], s[1]
	}
	flush()

	return windows
}
