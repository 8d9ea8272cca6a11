package fsops

import "testing"

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		glob     string
		name     string
		expected bool
	}{
		{"*.txt", "notes.txt", true},
		{"*.txt", "notes.txt.bak", false},
		{"*.txt", "notesatxt", false},
		{"cache", "cache", true},
		{"cache", "cache2", false},
		{"cache", "mycache", false},
		{"*cache*", "mycache2", true},
		{"a.b", "a.b", true},
		{"a.b", "axb", false},
		{"log[1]", "log[1]", true},
		{"*", "", true},
		{"", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.glob+"/"+tt.name, func(t *testing.T) {
			p := CompilePattern(tt.glob)
			if got := p.Match(tt.name); got != tt.expected {
				t.Errorf("CompilePattern(%q).Match(%q) = %v, expected %v", tt.glob, tt.name, got, tt.expected)
			}
		})
	}
}

func TestNilPatternString(t *testing.T) {
	var p *Pattern
	if p.String() != "*" {
		t.Errorf("nil pattern String() = %q", p.String())
	}
	if CompilePattern("") != nil {
		t.Error("empty glob should compile to nil")
	}
}
