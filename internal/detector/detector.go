// Package detector guesses the source language of a job when the caller
// asks for "auto".
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// AutoLanguage is the source language value that requests detection.
const AutoLanguage = "auto"

// sampleBytes caps how much text is fed to the detector.
const sampleBytes = 4096

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// DetectLines detects the language of a sample drawn from the leading
// non-blank lines.
func (d *Detector) DetectLines(lines []string) (string, bool) {
	var sb strings.Builder
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if sb.Len()+len(l) > sampleBytes && sb.Len() > 0 {
			break
		}
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return d.DetectISO(sb.String())
}
