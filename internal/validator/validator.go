// Package validator runs cheap quality checks over restored translations:
// markup must survive translation, and longer lines should be written in the
// target language.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/gameloc/internal/detector"
	"github.com/valpere/gameloc/internal/tagprotect"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// Issue kinds.
const (
	KindTagMismatch   = "tag_mismatch"
	KindTagOrder      = "tag_order"
	KindWrongLanguage = "wrong_language"
)

// Issue is one problem found on one line.
type Issue struct {
	Line   int
	Kind   string
	Detail string
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s: %s", i.Line+1, i.Kind, i.Detail)
}

type Validator struct {
	tags *tagprotect.Engine
	det  *detector.Detector
}

// New returns a Validator. A nil detector disables the language check.
func New(tags *tagprotect.Engine, det *detector.Detector) *Validator {
	return &Validator{tags: tags, det: det}
}

// IsValid returns true when translatedText appears to be written in targetLang.
//
// Short texts (fewer than minValidationLength runes) and texts whose language
// cannot be determined pass without error. When the detected language differs
// from targetLang the returned error names both codes.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	if targetLang == "" || v.det == nil {
		return true, nil
	}

	text := strings.TrimSpace(v.tags.Strip(translatedText))
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	// Compare base languages so "pt-BR" accepts "pt".
	base, _, _ := strings.Cut(targetLang, "-")
	if !strings.EqualFold(detected, base) {
		return false, fmt.Errorf("expected %s but detected %s", targetLang, detected)
	}
	return true, nil
}

// Check compares every translated line with its source. Lines with skip[i]
// set (markers) are not checked, and lines without free text get no
// language check.
func (v *Validator) Check(source, translated []string, skip []bool, targetLang string) []Issue {
	var issues []Issue
	for i := range translated {
		if i < len(skip) && skip[i] {
			continue
		}
		if i < len(source) {
			issues = append(issues, v.checkTags(i, source[i], translated[i])...)
		}
		if strings.TrimSpace(v.tags.Strip(translated[i])) == "" {
			continue
		}
		if ok, err := v.IsValid(translated[i], targetLang); !ok {
			issues = append(issues, Issue{Line: i, Kind: KindWrongLanguage, Detail: err.Error()})
		}
	}
	return issues
}

// checkTags reports missing or extra tags, and tags that kept their content
// but changed order.
func (v *Validator) checkTags(line int, source, translated string) []Issue {
	src := v.tags.Extract(source)
	dst := v.tags.Extract(translated)

	if !sameMultiset(src, dst) {
		return []Issue{{
			Line:   line,
			Kind:   KindTagMismatch,
			Detail: fmt.Sprintf("source has %d tags, translation has %d", len(src), len(dst)),
		}}
	}
	if strings.Join(src, "\x00") != strings.Join(dst, "\x00") {
		return []Issue{{Line: line, Kind: KindTagOrder, Detail: "tags reordered"}}
	}
	return nil
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
