package validator

import (
	"testing"

	"github.com/valpere/gameloc/internal/detector"
	"github.com/valpere/gameloc/internal/tagprotect"
)

func TestIsValid_WithoutDetector(t *testing.T) {
	v := New(tagprotect.New(), nil)

	valid, err := v.IsValid("This is clearly English text, long enough to detect.", "uk")
	if err != nil || !valid {
		t.Errorf("expected language check disabled, got %v, %v", valid, err)
	}
}

func TestIsValid(t *testing.T) {
	v := New(tagprotect.New(), detector.New())

	tests := []struct {
		name      string
		text      string
		target    string
		wantValid bool
		wantErr   bool
	}{
		{"empty target", "Some translated text", "", true, false},
		{"empty translation", "   ", "en", false, true},
		{"only tags", "<b></b>", "en", false, true},
		{"short text", "Hi", "en", true, false},
		{"english as english", "This is a longer piece of text that should be detected as English.", "en", true, false},
		{"case insensitive", "This is a longer piece of text that should be detected as English.", "EN", true, false},
		{"region subtag", "Este é um texto mais longo que deve ser detectado como português.", "pt-BR", true, false},
		{"mismatch", "This is a longer piece of text that should be detected as English.", "uk", false, true},
		{"ukrainian with markup", "<color=red>Це є тестовий текст українською мовою для перевірки.</color>", "uk", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := v.IsValid(tt.text, tt.target)
			if valid != tt.wantValid || (err != nil) != tt.wantErr {
				t.Errorf("IsValid(%q, %q) = %v, %v; want %v, err %v", tt.text, tt.target, valid, err, tt.wantValid, tt.wantErr)
			}
		})
	}
}

func TestCheck_Tags(t *testing.T) {
	v := New(tagprotect.New(), nil)

	source := []string{
		"Hello {$playerName}!",
		"<b>Sword</b> of [item:fire_01]",
		"Take [item:a] and [item:b]",
		"[Missing Line Translation]",
	}
	translated := []string{
		"Hallo {$playerName}!",
		"<b>Schwert</b> des",
		"Nimm [item:b] und [item:a]",
		"[Missing Line Translation]",
	}
	skip := []bool{false, false, false, true}

	issues := v.Check(source, translated, skip, "de")
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}
	if issues[0].Line != 1 || issues[0].Kind != KindTagMismatch {
		t.Errorf("expected tag mismatch on line 1, got %v", issues[0])
	}
	if issues[1].Line != 2 || issues[1].Kind != KindTagOrder {
		t.Errorf("expected tag order warning on line 2, got %v", issues[1])
	}
	if got := issues[0].String(); got != "line 2: tag_mismatch: source has 3 tags, translation has 2" {
		t.Errorf("unexpected issue text %q", got)
	}
}
