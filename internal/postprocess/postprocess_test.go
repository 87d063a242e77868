package postprocess

import "testing"

func TestRemoveThinkingBlocks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no thinking blocks",
			input:    "Bonjour\nAu revoir",
			expected: "Bonjour\nAu revoir",
		},
		{
			name:     "think block before lines",
			input:    "<think>count the lines: 2</think>\nHallo\nTschüss",
			expected: "Hallo\nTschüss",
		},
		{
			name:     "multi-line reasoning block",
			input:    "<reasoning>line one\nline two</reasoning>Ciao",
			expected: "Ciao",
		},
		{
			name:     "case-insensitive tags",
			input:    "<THINKING>x</THINKING>Hola",
			expected: "Hola",
		},
		{
			name:     "truncated block",
			input:    "Hola\n<thinking>the model was cut off",
			expected: "Hola",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := removeThinkingBlocks(tt.input); got != tt.expected {
				t.Errorf("removeThinkingBlocks(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRemoveCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fence",
			input:    "a\nb",
			expected: "a\nb",
		},
		{
			name:     "plain fence",
			input:    "```\na\nb\n```",
			expected: "a\nb",
		},
		{
			name:     "fence with language",
			input:    "```text\na\n```",
			expected: "a",
		},
		{
			name:     "fence only at start",
			input:    "```\na",
			expected: "```\na",
		},
		{
			name:     "single line backticks",
			input:    "``````",
			expected: "``````",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := removeCodeFence(tt.input); got != tt.expected {
				t.Errorf("removeCodeFence(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRemoveInstructionEchoes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no echo",
			input:    "Just a line\nAnother",
			expected: "Just a line\nAnother",
		},
		{
			name:     "echo on its own line",
			input:    "Here is the translation:\nZeile eins\nZeile zwei",
			expected: "Zeile eins\nZeile zwei",
		},
		{
			name:     "echo inline",
			input:    "Here's the translation: Hallo",
			expected: "Hallo",
		},
		{
			name:     "plural lines",
			input:    "Here are the translated lines:\nA\nB",
			expected: "A\nB",
		},
		{
			name:     "the translation",
			input:    "Translation: Hallo",
			expected: "Hallo",
		},
		{
			name:     "sure echo",
			input:    "Sure, here are the translations:\nA",
			expected: "A",
		},
		{
			name:     "echo not at start",
			input:    "A\nHere is the translation: B",
			expected: "A\nHere is the translation: B",
		},
		{
			name:     "no colon",
			input:    "Here's the translation text",
			expected: "Here's the translation text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := removeInstructionEchoes(tt.input); got != tt.expected {
				t.Errorf("removeInstructionEchoes(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClean_KeepsLineStructure(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "untouched blob",
			input:    "__TAG0__ Hallo\n\nTschüss __TAG1__",
			expected: "__TAG0__ Hallo\n\nTschüss __TAG1__",
		},
		{
			name:     "all artifacts",
			input:    "<think>hmm</think>\n```\nHere is the translation:\nEins\nZwei\n```\n",
			expected: "Eins\nZwei",
		},
		{
			name:     "quotes are kept",
			input:    "\"Halt!\"",
			expected: "\"Halt!\"",
		},
		{
			name:     "edge spaces trimmed",
			input:    "  Eins\nZwei \t",
			expected: "Eins\nZwei",
		},
		{
			name:     "leading blank line kept",
			input:    "\nHallo\nWelt",
			expected: "\nHallo\nWelt",
		},
		{
			name:     "trailing blank line kept",
			input:    "Hallo\n",
			expected: "Hallo\n",
		},
		{
			name:     "fence followed by newline",
			input:    "```\n\nEins\n```\n",
			expected: "\nEins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
