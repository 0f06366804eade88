package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/smallnest/dialoggraph/config"
	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/llm"
	"github.com/smallnest/dialoggraph/log"
	"github.com/smallnest/dialoggraph/metrics"
	"github.com/smallnest/dialoggraph/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "dialoggen",
	Short: "dialoggen generates branching NPC dialogue with a language model",
	Long: `dialoggen builds a conversation graph for a character and a player goal in three stages:
structure generation, content filling and validation. Each stage can run on its own over
JSON graph files, or all together with the self-review loop.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env", []string{".env"}, "Env files to load before the environment")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error, none); overrides LOG_LEVEL")
}

// app is everything a command needs, built from configuration.
type app struct {
	cfg       *config.Config
	logger    log.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector

	structure *pipeline.StructureGenerator
	content   *pipeline.ContentFiller
	validator *pipeline.Validator
}

func setup(cmd *cobra.Command) (*app, error) {
	files, _ := cmd.Flags().GetStringSlice("env")
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		if cfg.LogLevel, err = log.ParseLevel(lvl); err != nil {
			return nil, err
		}
	}

	logger := log.New(cmd.ErrOrStderr(), cfg.LogLevel)
	log.SetDefaultLogger(logger)

	// Each app owns its registry so commands can be set up more than once per process.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		collector: metrics.NewCollector(registry),
	}

	gen := func(stage, metricStage string) (llm.Generator, error) {
		c := cfg.LLM(stage)
		c.Logger = logger
		g, err := llm.New(c)
		if err != nil {
			return nil, fmt.Errorf("%s model: %w", stage, err)
		}
		return a.collector.InstrumentGenerator(metricStage, g), nil
	}

	treeGen, err := gen(config.StageTree, pipeline.StageStructure)
	if err != nil {
		return nil, err
	}
	contentGen, err := gen(config.StageContent, pipeline.StageContent)
	if err != nil {
		return nil, err
	}
	validatorGen, err := gen(config.StageValidator, pipeline.StageValidate)
	if err != nil {
		return nil, err
	}

	a.structure = pipeline.NewStructureGenerator(treeGen, logger)
	a.content = pipeline.NewContentFiller(contentGen, logger)
	a.content.Concurrency = cfg.ContentConcurrency
	a.validator = pipeline.NewValidator(validatorGen, logger)
	return a, nil
}

func (a *app) workflow() *pipeline.Workflow {
	w := pipeline.NewWorkflow(a.structure, a.content, a.validator)
	w.MaxReviewIterations = a.cfg.MaxReviewIterations
	w.Logger = a.logger
	w.Hooks = append(w.Hooks, a.collector)
	return w
}

func readGraph(path string) (*dialog.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	var g dialog.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse graph %s: %w", path, err)
	}
	return &g, nil
}

// writeJSON writes v indented to path, or to stdout when path is empty or "-".
func writeJSON(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func requestFlag(cmd *cobra.Command) (pipeline.Request, error) {
	path, _ := cmd.Flags().GetString("request")
	if path == "" {
		return pipeline.Request{}, fmt.Errorf("--request is required")
	}
	return config.LoadRequest(path)
}
