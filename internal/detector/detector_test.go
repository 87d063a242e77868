package detector

import (
	"testing"
)

func TestDetector_DetectISO(t *testing.T) {
	d := New()

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantOK   bool
	}{
		{
			name:   "empty text",
			text:   "",
			wantOK: false,
		},
		{
			name:   "whitespace only",
			text:   "  \n\t",
			wantOK: false,
		},
		{
			name:     "english dialogue",
			text:     "The merchant will not open his shop until the bridge is repaired.",
			wantCode: "en",
			wantOK:   true,
		},
		{
			name:     "german dialogue",
			text:     "Der Händler öffnet seinen Laden erst, wenn die Brücke repariert ist.",
			wantCode: "de",
			wantOK:   true,
		},
		{
			name:     "ukrainian dialogue",
			text:     "Торговець не відкриє крамницю, доки міст не полагодять.",
			wantCode: "uk",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := d.DetectISO(tt.text)
			if ok != tt.wantOK {
				t.Errorf("DetectISO(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
				return
			}
			if tt.wantOK && code != tt.wantCode {
				t.Errorf("DetectISO(%q) = %q, want %q", tt.text, code, tt.wantCode)
			}
		})
	}
}

func TestDetector_DetectLines(t *testing.T) {
	d := New()

	lines := []string{
		"",
		"Bonjour, aventurier. Le village a besoin de ton aide.",
		"   ",
		"Les loups ont encore attaqué la ferme cette nuit.",
	}
	code, ok := d.DetectLines(lines)
	if !ok || code != "fr" {
		t.Errorf("DetectLines() = %q, %v, want fr, true", code, ok)
	}

	if _, ok := d.DetectLines([]string{"", " "}); ok {
		t.Error("expected blank lines to be undetectable")
	}
}
