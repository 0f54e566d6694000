package translate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/minios-linux/lokat/langmeta"
)

// ProtocolTag identifies the prompt layout sent to providers.
const ProtocolTag = "[lokat:translate/v1]"

// Request is one value to translate.
type Request struct {
	// Text is the source value.
	Text string
	// Key is the catalog key, sent as context.
	Key string
	// SourceLang and TargetLang are language codes.
	SourceLang string
	TargetLang string
	// SourceName and TargetName are display names; the registry name is
	// used when empty.
	SourceName string
	TargetName string
}

func (r Request) sourceName() string {
	if r.SourceName != "" {
		return r.SourceName
	}
	return langmeta.DisplayName(r.SourceLang)
}

func (r Request) targetName() string {
	if r.TargetName != "" {
		return r.TargetName
	}
	return langmeta.DisplayName(r.TargetLang)
}

const systemTemplate = `%s
You are a professional translator specializing in software localization. Translate the user's text from %s (%s) to %s (%s).
Context: key %s

RULES:
- Return ONLY the translated text as plain text.
- No quotes, code blocks, explanations or notes.
- Preserve placeholders ({name}, {{count}}, %%s, %%d), HTML tags and surrounding whitespace exactly.
- Keep brand names and proper nouns unchanged.
- Use the UI terminology established in %s.`

// BuildPrompt returns the system and user prompts for req.
func BuildPrompt(req Request) (system, user string) {
	target := req.targetName()
	system = fmt.Sprintf(systemTemplate,
		ProtocolTag,
		req.sourceName(), req.SourceLang,
		target, req.TargetLang,
		req.Key,
		target)
	user = `"""` + "\n" + req.Text + "\n" + `"""`
	return system, user
}

// ---------------------------------------------------------------------------
// Output normalization
// ---------------------------------------------------------------------------

const maxCleanPasses = 5

var quotePairs = [][2]rune{
	{'"', '"'},
	{'\'', '\''},
	{'“', '”'},
	{'«', '»'},
	{'`', '`'},
}

// CleanOutput removes wrapping the model added around its answer: code
// fences, """ blocks and one matching pair of quotes per pass, repeated
// until the text stops changing.
func CleanOutput(raw string) string {
	s := strings.TrimSpace(raw)
	for i := 0; i < maxCleanPasses; i++ {
		next := stripQuotePair(stripTripleQuotes(stripFence(s)))
		if next == s {
			break
		}
		s = next
	}
	return s
}

func stripFence(s string) string {
	if len(s) < 6 || !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && isFenceTag(inner[:nl]) {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

// isFenceTag reports whether s looks like a code fence info string ("json", "text").
func isFenceTag(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '+' {
			return false
		}
	}
	return true
}

func stripTripleQuotes(s string) string {
	if len(s) < 6 || !strings.HasPrefix(s, `"""`) || !strings.HasSuffix(s, `"""`) {
		return s
	}
	return strings.TrimSpace(s[3 : len(s)-3])
}

// stripQuotePair removes one pair of surrounding quotes. Text that uses the
// same quote characters inside ("a" and "b") is left alone.
func stripQuotePair(s string) string {
	if utf8.RuneCountInString(s) < 2 {
		return s
	}
	first, fw := utf8.DecodeRuneInString(s)
	last, lw := utf8.DecodeLastRuneInString(s)
	for _, p := range quotePairs {
		if first != p[0] || last != p[1] {
			continue
		}
		inner := s[fw : len(s)-lw]
		if strings.ContainsRune(inner, p[0]) || strings.ContainsRune(inner, p[1]) {
			return s
		}
		return strings.TrimSpace(inner)
	}
	return s
}
