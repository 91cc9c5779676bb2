// Package visualization renders the network in various output formats and
// serves the live view.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/topology"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat accepts dot, json or html.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: dot, json, html)", s)
}

// nodeColors maps neuron types to DOT colors.
var nodeColors = map[topology.NeuronType]string{
	topology.Input:            "steelblue",
	topology.ExcitatoryHidden: "mediumseagreen",
	topology.InhibitoryHidden: "tomato",
	topology.Output:           "goldenrod",
}

// minPenWidth keeps zero-strength edges visible.
const (
	minPenWidth = 0.2
	maxPenWidth = 4.0
)

// RenderDOT produces a Graphviz DOT representation of the network. Edge
// width follows effective strength; resilient connections are drawn bold.
func RenderDOT(s engine.Snapshot) string {
	var b strings.Builder
	b.WriteString("digraph neurosim {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=8, arrowsize=0.5];\n")
	fmt.Fprintf(&b, "  label=%q;\n\n", fmt.Sprintf("%s  %s  t=%.1fs", s.Regime, s.ModeLabel, s.Elapsed))

	// One rank per layer.
	layers := []struct {
		name string
		keep func(topology.NeuronType) bool
	}{
		{"input", func(t topology.NeuronType) bool { return t == topology.Input }},
		{"hidden", topology.NeuronType.IsHidden},
		{"output", func(t topology.NeuronType) bool { return t == topology.Output }},
	}
	for _, layer := range layers {
		fmt.Fprintf(&b, "  subgraph cluster_%s {\n    rank=same; style=invis;\n", layer.name)
		for _, n := range s.Neurons {
			if !layer.keep(n.Type) {
				continue
			}
			color := nodeColors[n.Type]
			if color == "" {
				color = "lightgray"
			}
			style := "filled"
			if !n.Active {
				style = "filled,dashed"
			}
			fmt.Fprintf(&b, "    %q [fillcolor=%q, style=%q, tooltip=\"%s %.1fmV\"];\n",
				n.Label, color, style, n.Type, n.Potential)
		}
		b.WriteString("  }\n")
	}
	b.WriteString("\n")

	for _, c := range s.Connections {
		width := minPenWidth + (maxPenWidth-minPenWidth)*topology.ClampUnit(c.Effective)
		attrs := fmt.Sprintf("penwidth=%.2f, tooltip=\"strength=%.3f effective=%.3f\"", width, c.Strength, c.Effective)
		if c.Resilient {
			attrs += ", style=bold, color=\"darkgreen\""
		} else if c.Degradation > 0 {
			attrs += fmt.Sprintf(", color=\"gray%d\"", 20+int(60*c.Degradation))
		}
		fmt.Fprintf(&b, "  %q -> %q [%s];\n", c.SourceLabel, c.TargetLabel, attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes and edges
// arrays.
func RenderJSON(s engine.Snapshot) map[string]any {
	nodes := make([]map[string]any, 0, len(s.Neurons))
	for _, n := range s.Neurons {
		nodes = append(nodes, map[string]any{
			"id":        n.Label,
			"type":      n.Type.String(),
			"potential": n.Potential,
			"active":    n.Active,
		})
	}

	edges := make([]map[string]any, 0, len(s.Connections))
	for _, c := range s.Connections {
		edges = append(edges, map[string]any{
			"source":      c.SourceLabel,
			"target":      c.TargetLabel,
			"strength":    c.Strength,
			"effective":   c.Effective,
			"degradation": c.Degradation,
			"resilient":   c.Resilient,
		})
	}

	return map[string]any{
		"regime":     s.Regime,
		"mode":       s.ModeLabel,
		"elapsed":    s.Elapsed,
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}

// htmlTemplateData holds data passed to the HTML template.
// SnapshotJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline
// <script>. APIBase is empty for a static page.
type htmlTemplateData struct {
	Title        string
	APIBase      string
	SnapshotJSON template.JS
}

var pageTemplate = template.Must(template.ParseFS(templates, "templates/index.html.tmpl"))

// RenderHTML produces a self-contained page showing s. When apiBase is set
// the page polls it for fresh snapshots and offers the command buttons.
func RenderHTML(s engine.Snapshot, apiBase string) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	// json.HTMLEscape turns <, > and & into unicode escapes so the payload
	// cannot close the <script> element.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, raw)

	data := htmlTemplateData{
		Title:        fmt.Sprintf("neurosim: %s", s.Regime),
		APIBase:      apiBase,
		SnapshotJSON: template.JS(escaped.String()), // #nosec G203
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}
