package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/render"
)

var renderCmd = &cobra.Command{
	Use:   "render <graph.json>",
	Short: "Export a graph as mermaid, dot, ascii, markdown or html",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := readGraph(args[0])
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		text, err := renderGraph(g, format)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" || out == "-" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		}
		return os.WriteFile(out, []byte(text), 0o644)
	},
}

func renderGraph(g *dialog.Graph, format string) (string, error) {
	switch format {
	case "mermaid", "":
		return render.MermaidWithOptions(g, render.MermaidOptions{Summaries: true}), nil
	case "dot":
		return render.DOT(g), nil
	case "ascii":
		return render.ASCII(g), nil
	case "markdown", "md":
		return render.Markdown(g), nil
	case "html":
		return render.HTML(g), nil
	default:
		return "", fmt.Errorf("unknown format %q (want mermaid, dot, ascii, markdown or html)", format)
	}
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringP("format", "f", "mermaid", "Output format")
	renderCmd.Flags().StringP("out", "o", "", "Write here instead of stdout")
}
