package graphviz

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/schemagraph/pkg/common"
)

func testModel() common.GraphModel {
	return common.GraphModel{
		Direction: "LR",
		Nodes: []common.Node{
			{Name: "Orders", Label: "<<TABLE><TR><TD>Orders</TD></TR></TABLE>>", Shape: "plaintext"},
			{Name: "Customers", Label: "<<TABLE><TR><TD>Customers</TD></TR></TABLE>>", Shape: "plaintext"},
		},
		Edges: []common.Edge{
			{Source: "Orders", Target: "Customers", Label: "CustomerRef"},
		},
	}
}

func TestEncode(t *testing.T) {
	got := string(Encode(testModel()))
	want := "// Database Schema\n" +
		"digraph {\n" +
		"\trankdir=LR\n" +
		"\t\"Orders\" [label=<<TABLE><TR><TD>Orders</TD></TR></TABLE>> shape=plaintext]\n" +
		"\t\"Customers\" [label=<<TABLE><TR><TD>Customers</TD></TR></TABLE>> shape=plaintext]\n" +
		"\t\"Orders\" -> \"Customers\" [label=\"CustomerRef\"]\n" +
		"}\n"
	if got != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", got, want)
	}
}

func TestEncodeQuotesNames(t *testing.T) {
	model := common.GraphModel{
		Nodes: []common.Node{{Name: `Say "hi"`, Label: "plain"}},
	}
	got := string(Encode(model))
	if !strings.Contains(got, `"Say \"hi\"" [label="plain" shape=plaintext]`) {
		t.Errorf("names not quoted: %s", got)
	}
	if !strings.Contains(got, "rankdir=LR") {
		t.Errorf("missing default direction: %s", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatPNG, false},
		{"PNG", FormatPNG, false},
		{"svg", FormatSVG, false},
		{"dot", FormatDOT, false},
		{"gif", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderDOTFormatSkipsBinary(t *testing.T) {
	r := NewRenderer(NewRendererParams{Binary: "/nonexistent/dot", Format: FormatDOT})
	out, err := r.Render(context.Background(), testModel())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.Equal(out, Encode(testModel())) {
		t.Error("dot format should return the encoded source")
	}
	if r.ContentType() != "text/vnd.graphviz" || r.Extension() != "dot" {
		t.Errorf("unexpected content type %q / extension %q", r.ContentType(), r.Extension())
	}
}

func TestRenderMissingBinary(t *testing.T) {
	r := NewRenderer(NewRendererParams{Binary: "/nonexistent/dot"})
	_, err := r.Render(context.Background(), testModel())
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("expected ErrBinaryNotFound, got %v", err)
	}
}

func TestRenderPNG(t *testing.T) {
	if _, err := exec.LookPath("dot"); err != nil {
		t.Skip("graphviz not installed")
	}
	r := NewRenderer(NewRendererParams{})
	out, err := r.Render(context.Background(), testModel())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.HasPrefix(out, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}
