package security

import (
	"errors"
	"strings"
	"testing"
)

type yamlTarget struct {
	Name  string         `yaml:"name"`
	Items []string       `yaml:"items"`
	Extra map[string]any `yaml:"extra"`
}

func TestDecodeYAML(t *testing.T) {
	var out yamlTarget
	err := DecodeYAML(strings.NewReader("name: bot\nitems: [a, b]\nextra:\n  k: 1\n"), &out, DefaultYAMLLimits())
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	if out.Name != "bot" || len(out.Items) != 2 || out.Extra["k"] != 1 {
		t.Errorf("decoded = %+v", out)
	}
}

func TestDecodeYAML_Empty(t *testing.T) {
	out := yamlTarget{Name: "keep"}
	if err := DecodeYAML(strings.NewReader("  \n"), &out, DefaultYAMLLimits()); err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	if out.Name != "keep" {
		t.Errorf("empty input modified target: %+v", out)
	}
}

func TestDecodeYAML_Limits(t *testing.T) {
	small := YAMLLimits{MaxSize: 64, MaxDepth: 2, MaxNodes: 20, MaxScalar: 8}

	tests := []struct {
		name    string
		input   string
		tooBig  bool
		wantErr string
	}{
		{name: "size", input: strings.Repeat("a: b\n", 20), tooBig: true},
		{name: "scalar", input: "name: abcdefghijk\n", tooBig: true},
		{name: "depth", input: "a:\n b:\n  c:\n   d: 1\n", wantErr: "depth"},
		{name: "nodes", input: "items: [1,2,3,4,5,6,7,8,9,0,1,2,3,4,5,6,7,8,9]\n", wantErr: "node count"},
		{name: "syntax", input: "a: [[[\n", wantErr: "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := DecodeYAML(strings.NewReader(tt.input), &out, small)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.tooBig && !errors.Is(err, ErrYAMLTooLarge) {
				t.Errorf("error = %v, want ErrYAMLTooLarge", err)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeYAML_AliasExpansion(t *testing.T) {
	doc := `
a: &a [x, x, x, x, x]
b: &b [*a, *a, *a, *a, *a]
c: [*b, *b, *b, *b, *b]
`
	limits := DefaultYAMLLimits()
	limits.MaxNodes = 100

	var out map[string]any
	err := DecodeYAML(strings.NewReader(doc), &out, limits)
	if err == nil || !strings.Contains(err.Error(), "node count") {
		t.Errorf("error = %v, want node count limit", err)
	}
}
