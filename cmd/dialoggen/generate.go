package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallnest/dialoggraph/config"
)

var generateCmd = &cobra.Command{
	Use:   "generate <request.yaml>",
	Short: "Run the full pipeline for a request file",
	Long: `Generates the structure, fills every node and validates the result, regenerating the
structure while the verdict is invalid and review iterations remain.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		req, err := config.LoadRequest(args[0])
		if err != nil {
			return err
		}

		w := a.workflow()
		if cmd.Flags().Changed("max-review") {
			w.MaxReviewIterations, _ = cmd.Flags().GetInt("max-review")
		}
		w.SkipValidation, _ = cmd.Flags().GetBool("skip-validation")
		if cmd.Flags().Changed("concurrency") {
			a.content.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		state, err := w.Run(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("run %s: %w", state.RunID, err)
		}

		out, _ := cmd.Flags().GetString("out")
		if err := writeJSON(cmd, out, state); err != nil {
			return err
		}
		if state.Verdict != nil {
			printVerdict(cmd.ErrOrStderr(), state.Verdict)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render(fmt.Sprintf(
			"run %s: %d nodes, %d iteration(s)", state.RunID, state.Graph.Len(), state.Iteration)))
		if state.Verdict != nil && !state.Verdict.IsValid {
			fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render("review budget exhausted; kept the last graph"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringP("out", "o", "", "Write the final state here instead of stdout")
	generateCmd.Flags().Int("max-review", 0, "Regenerations allowed after an invalid verdict; overrides MAX_SELF_REVIEW_ITERATIONS")
	generateCmd.Flags().Int("concurrency", 0, "Parallel content calls; overrides CONTENT_CONCURRENCY")
	generateCmd.Flags().Bool("skip-validation", false, "Stop after content filling")
}
