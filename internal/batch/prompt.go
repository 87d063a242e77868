package batch

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/valpere/gameloc/internal/chunker"
)

// languageName renders a BCP 47 code as an English language name, falling
// back to the code itself.
func languageName(code string) string {
	if code == "" || code == "auto" {
		return "the detected source language"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// SystemPrompt builds the instruction sent with every chunk.
func SystemPrompt(sourceLang, targetLang string, expectedLines int) string {
	var sb strings.Builder

	sb.WriteString("You are a professional game localization translator. ")
	sb.WriteString(fmt.Sprintf("Translate the user's game text from %s to %s.\n", languageName(sourceLang), languageName(targetLang)))
	sb.WriteString("The input holds several independent text lines separated by a newline character.\n")
	sb.WriteString(fmt.Sprintf("Newlines that belong inside a single line were replaced with %s; keep that token where the line break belongs in the translation.\n", chunker.NewlineSentinel))
	sb.WriteString(fmt.Sprintf("Your output MUST contain exactly %d lines, one translated line per input line, in the same order. ", expectedLines))
	sb.WriteString("If a line translates to nothing, output an empty line for it. Never merge or split lines.\n")
	sb.WriteString("Tokens of the form __TAG0__, __TAG1__ and so on are protected markup: copy them unchanged and keep them in a sensible position.\n")
	sb.WriteString("Keep every other symbol, tag and format marker intact. Match the tone of the game and make dialogue sound natural in the target language.\n")
	sb.WriteString("Respond with the translated lines only, without explanations or quotes.")

	return sb.String()
}
