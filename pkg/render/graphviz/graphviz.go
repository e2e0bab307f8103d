package graphviz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/OFFIS-RIT/schemagraph/pkg/common"
)

// Format is a Graphviz output format (the -T argument).
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
	FormatPDF Format = "pdf"
	// FormatDOT returns the DOT source without running Graphviz.
	FormatDOT Format = "dot"
)

// ParseFormat validates a format name; empty means png.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatPNG, nil
	case FormatPNG, FormatSVG, FormatPDF, FormatDOT:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported render format %q", s)
	}
}

// ErrBinaryNotFound is returned when the dot executable cannot be located.
var ErrBinaryNotFound = errors.New("graphviz dot executable not found")

// Renderer renders GraphModels with the Graphviz dot executable.
type Renderer struct {
	binary string
	format Format
}

// NewRendererParams configures a Renderer. Binary defaults to "dot" on PATH.
type NewRendererParams struct {
	Binary string
	Format Format
}

// NewRenderer creates a Renderer.
func NewRenderer(params NewRendererParams) *Renderer {
	binary := params.Binary
	if binary == "" {
		binary = "dot"
	}
	format := params.Format
	if format == "" {
		format = FormatPNG
	}
	return &Renderer{binary: binary, format: format}
}

// Render encodes model as DOT and converts it to the configured format.
func (r *Renderer) Render(ctx context.Context, model common.GraphModel) ([]byte, error) {
	src := Encode(model)
	if r.format == FormatDOT {
		return src, nil
	}

	path, err := exec.LookPath(r.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, r.binary)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-T"+string(r.format))
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("dot -T%s failed: %w: %s", r.format, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (r *Renderer) ContentType() string {
	switch r.format {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPDF:
		return "application/pdf"
	case FormatDOT:
		return "text/vnd.graphviz"
	default:
		return "image/png"
	}
}

func (r *Renderer) Extension() string {
	return string(r.format)
}

// Encode writes model as a DOT digraph. Nodes and edges appear in model order.
func Encode(model common.GraphModel) []byte {
	var sb strings.Builder

	direction := model.Direction
	if direction == "" {
		direction = "LR"
	}

	sb.WriteString("// Database Schema\n")
	sb.WriteString("digraph {\n")
	fmt.Fprintf(&sb, "\trankdir=%s\n", direction)

	for _, n := range model.Nodes {
		shape := n.Shape
		if shape == "" {
			shape = "plaintext"
		}
		fmt.Fprintf(&sb, "\t%s [label=%s shape=%s]\n", quoteID(n.Name), htmlOrQuoted(n.Label), shape)
	}
	for _, e := range model.Edges {
		fmt.Fprintf(&sb, "\t%s -> %s [label=%s]\n", quoteID(e.Source), quoteID(e.Target), quoteID(e.Label))
	}

	sb.WriteString("}\n")
	return []byte(sb.String())
}

func quoteID(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
	)
	return "\"" + r.Replace(s) + "\""
}

// htmlOrQuoted passes HTML-like labels (<...>) through untouched.
func htmlOrQuoted(label string) string {
	if strings.HasPrefix(label, "<") && strings.HasSuffix(label, ">") {
		return label
	}
	return quoteID(label)
}
