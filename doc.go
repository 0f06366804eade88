// dialoggraph - Branching NPC Dialogue Generation in Go
//
// dialoggraph turns a character description and a player goal into a branching
// conversation graph written by a language model. Generation runs in three stages:
//
//  1. Structure: the model drafts the skeleton (nodes, branch types, parent/child links),
//     which is checked against the graph invariants before anything else sees it.
//  2. Content: every node gets an NPC line and player choices, visiting breadth-first from
//     the root with the node's ancestors as history and its children as lookahead.
//  3. Validation: the model scores the filled graph against a checklist; the graph is
//     valid when no criterion scores 2 or lower.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/smallnest/dialoggraph/cmd/dialoggen@latest
//
// Describe the request in YAML:
//
//	character:
//	  name: Old sage
//	  goals: [share wisdom]
//	  personality: wise, speaks in riddles
//	goal:
//	  type: obtain_item
//	  target: letter
//	constraints:
//	  max_turns: 5
//
// Then run the pipeline and render the result:
//
//	export LLM_BASE__API_KEY=...
//	dialoggen generate sage.yaml -o state.json
//	dialoggen render state.json --format markdown
//
// Library use:
//
//	gen, _ := llm.New(llm.Config{APIKey: key, Model: "deepseek-chat", BaseURL: "https://api.deepseek.com"})
//	w := pipeline.NewWorkflow(
//		pipeline.NewStructureGenerator(gen, nil),
//		pipeline.NewContentFiller(gen, nil),
//		pipeline.NewValidator(gen, nil),
//	)
//	state, err := w.Run(ctx, pipeline.Request{Character: character, Goal: goal})
//
// # Packages
//
//   - dialog: the graph model, its invariants and the request types
//   - traverse: ancestor and breadth-first walks that terminate on loop branches
//   - prompt: the embedded prompt templates for each stage
//   - llm: the Generator capability over langchaingo or go-openai
//   - pipeline: the three stages and the Workflow with its review loop
//   - graph: the small state-graph engine the Workflow runs on, with retries and tracing
//   - store: checkpoint storage for resumable runs
//   - render: Mermaid, DOT, ASCII, Markdown and HTML export
//   - metrics: Prometheus collectors fed from workflow traces
//   - config: .env and environment configuration
//   - server: the HTTP API
//   - log: leveled logging with a golog backend
package dialoggraph
