package graph

import (
	"html"
	"strings"

	"github.com/OFFIS-RIT/schemagraph/pkg/common"
)

// tableLabel formats a collection as a Graphviz HTML-like label: a bold header
// row with the collection name followed by one (name, type) row per field.
func tableLabel(name string, fields []common.NodeField) string {
	var sb strings.Builder

	sb.WriteString("<<TABLE BORDER='0' CELLBORDER='1' CELLSPACING='0'>\n")
	sb.WriteString("<TR><TD COLSPAN='2'><B>")
	sb.WriteString(html.EscapeString(name))
	sb.WriteString("</B></TD></TR>\n")

	for _, f := range fields {
		sb.WriteString("<TR><TD>")
		sb.WriteString(html.EscapeString(f.Name))
		sb.WriteString("</TD><TD>")
		sb.WriteString(html.EscapeString(string(f.Type)))
		sb.WriteString("</TD></TR>\n")
	}

	sb.WriteString("</TABLE>>")
	return sb.String()
}
