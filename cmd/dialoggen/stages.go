package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallnest/dialoggraph/config"
	"github.com/smallnest/dialoggraph/pipeline"
)

var structureCmd = &cobra.Command{
	Use:   "structure <request.yaml>",
	Short: "Generate an unfilled conversation graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		req, err := config.LoadRequest(args[0])
		if err != nil {
			return err
		}
		g, err := a.structure.Generate(cmd.Context(), req.Character, req.Goal, req.Constraints)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		return writeJSON(cmd, out, g)
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill <graph.json>",
	Short: "Write dialogue into every node of a graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		req, err := requestFlag(cmd)
		if err != nil {
			return err
		}
		g, err := readGraph(args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("concurrency") {
			a.content.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}
		a.content.OnNodeFilled = func(p pipeline.NodeProgress) {
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render(fmt.Sprintf("[%d/%d] %s", p.Filled, p.Total, p.NodeID)))
		}
		if _, err := a.content.Fill(cmd.Context(), g, req.Character, req.Goal); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		return writeJSON(cmd, out, g)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <graph.json>",
	Short: "Score a filled graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		req, err := requestFlag(cmd)
		if err != nil {
			return err
		}
		g, err := readGraph(args[0])
		if err != nil {
			return err
		}
		v, err := a.validator.Validate(cmd.Context(), g, req.Character, req.Goal, req.Constraints.WithDefaults())
		if err != nil {
			return err
		}
		printVerdict(cmd.OutOrStdout(), v)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd, "", v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(structureCmd, fillCmd, validateCmd)

	structureCmd.Flags().StringP("out", "o", "", "Write the graph here instead of stdout")

	fillCmd.Flags().StringP("request", "r", "", "Request file with the character and goal")
	fillCmd.Flags().StringP("out", "o", "", "Write the filled graph here instead of stdout")
	fillCmd.Flags().Int("concurrency", 0, "Parallel content calls; overrides CONTENT_CONCURRENCY")

	validateCmd.Flags().StringP("request", "r", "", "Request file with the character, goal and constraints")
	validateCmd.Flags().Bool("json", false, "Also print the verdict as JSON")
}
