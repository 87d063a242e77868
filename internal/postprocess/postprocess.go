// Package postprocess strips model artifacts from a returned chunk blob
// before it is split back into lines.
//
// Cleanup only ever removes text at the edges of the blob or inside reasoning
// blocks; the newline structure between translated lines is left alone.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes reasoning blocks, a wrapping code fence and a leading
// instruction echo, then trims spaces and tabs at both ends. Newlines at the
// edges are kept: a leading or trailing empty line may be a translated blank
// line, and the line count repair decides.
func Clean(blob string) string {
	blob = removeThinkingBlocks(blob)
	blob = removeCodeFence(blob)
	blob = removeInstructionEchoes(blob)
	return strings.Trim(blob, " \t")
}

// thinkingBlockRe lists each tag pair explicitly; RE2 has no backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches a reasoning block the model never closed.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

// removeThinkingBlocks also drops the line break that followed a leading
// block.
func removeThinkingBlocks(text string) string {
	if loc := thinkingBlockRe.FindStringIndex(text); loc != nil && strings.TrimSpace(text[:loc[0]]) == "" {
		rest := strings.TrimLeft(text[loc[1]:], " \t\r")
		text = strings.TrimPrefix(rest, "\n")
	}
	text = thinkingBlockRe.ReplaceAllString(text, "")
	if loc := truncatedThinkingRe.FindStringIndex(text); loc != nil {
		text = strings.TrimRight(text[:loc[0]], " \t\r\n")
	}
	return text
}

// removeCodeFence unwraps ```lang\n…\n``` when it encloses the whole blob.
func removeCodeFence(text string) string {
	t := strings.TrimRight(text, " \t\r\n")
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return text
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 || nl > len(t)-3 {
		return text
	}
	inner := t[nl+1 : len(t)-3]
	return strings.TrimSuffix(strings.TrimSuffix(inner, "\n"), "\r")
}

// echoPatterns are anchored at the start and require a colon. The optional
// trailing newline is consumed with the echo so the first line stays first.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is| are)(?: the)? (?:refined |polished |translated )?(?:translations?|text|lines)\s*:[ \t]*\n?`),
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished )?(?:translations?|translated (?:text|lines))\s*:[ \t]*\n?`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is| are)(?: the)? (?:refined |polished |translated )?(?:translations?|text|lines)\s*:[ \t]*\n?`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = text[loc[1]:]
		}
	}
	return text
}
