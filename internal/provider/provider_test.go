package provider

import (
	"testing"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
	}{
		{"anthropic/claude-sonnet-4-20250514", "anthropic", "claude-sonnet-4-20250514"},
		{"ark/ep-2024-abc", "ark", "ep-2024-abc"},
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"just-a-model", "", "just-a-model"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			provider, model := ParseModelString(tt.input)
			if provider != tt.wantProvider {
				t.Errorf("ParseModelString(%q) provider = %q, want %q", tt.input, provider, tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("ParseModelString(%q) model = %q, want %q", tt.input, model, tt.wantModel)
			}
		})
	}
}

func TestModelPriority(t *testing.T) {
	tests := []struct {
		higher string
		lower  string
	}{
		{"gpt-5", "claude-sonnet-4-20250514"},
		{"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
		{"gpt-4o", "claude-3-5-sonnet-20241022"},
		{"claude-3-5-haiku-20241022", "some-unknown-model"},
	}

	for _, tt := range tests {
		if modelPriority(tt.higher) <= modelPriority(tt.lower) {
			t.Errorf("expected %q to outrank %q", tt.higher, tt.lower)
		}
	}
}
