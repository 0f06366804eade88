// Package render exports dialogue graphs for people to read.
//
// Mermaid and DOT produce diagrams with one shape and colour per branch type; edges back to
// shallower nodes (loop branches) are drawn dashed. ASCII prints an indented tree, Markdown a
// script in breadth-first order, and HTML the same script rendered with gomarkdown and
// sanitized with bluemonday.
package render
