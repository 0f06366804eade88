package pipeline

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/graph"
	"github.com/smallnest/dialoggraph/log"
	"github.com/smallnest/dialoggraph/store"
)

// Workflow stage names. They are the node names of the underlying state graph.
const (
	StageStructure = "structure"
	StageContent   = "content"
	StageValidate  = "validate"
)

// DefaultMaxReviewIterations is how many times an invalid graph is regenerated by default.
const DefaultMaxReviewIterations = 2

// Request is the input of a full pipeline run.
type Request struct {
	Character   dialog.Character   `json:"character" yaml:"character"`
	Goal        dialog.Goal        `json:"goal" yaml:"goal"`
	Constraints dialog.Constraints `json:"constraints" yaml:"constraints"`
}

// State is threaded through the workflow stages.
type State struct {
	RunID   string        `json:"run_id"`
	Request Request       `json:"request"`
	Graph   *dialog.Graph `json:"dialog_tree,omitempty"`
	Verdict *Verdict      `json:"verdict,omitempty"`
	// Iteration counts structure generations in this run, starting at 1.
	Iteration int                      `json:"iteration"`
	Timings   map[string]time.Duration `json:"timings"`
	Logs      []string                 `json:"logs,omitempty"`
}

// Clone deep-copies the state so checkpoints never share a graph with a live run.
func (s *State) Clone() *State {
	c := *s
	if s.Graph != nil {
		c.Graph = s.Graph.Clone()
	}
	if s.Verdict != nil {
		v := *s.Verdict
		v.Scores = maps.Clone(s.Verdict.Scores)
		v.Comments = maps.Clone(s.Verdict.Comments)
		c.Verdict = &v
	}
	c.Timings = maps.Clone(s.Timings)
	c.Logs = append([]string(nil), s.Logs...)
	return &c
}

func (s *State) logf(format string, args ...any) {
	s.Logs = append(s.Logs, fmt.Sprintf(format, args...))
}

// Workflow runs structure generation, content filling and validation as a state graph,
// regenerating the structure while the verdict is invalid and review iterations remain.
type Workflow struct {
	Structure *StructureGenerator
	Content   *ContentFiller
	Validator *Validator

	// MaxReviewIterations is how many regenerations an invalid verdict may trigger.
	MaxReviewIterations int
	// SkipValidation ends the run after content filling.
	SkipValidation bool
	// RetryPolicy re-runs a failed stage from scratch for matching errors.
	RetryPolicy *graph.RetryPolicy
	// Checkpoints receives a deep copy of the state after every completed stage. Optional.
	Checkpoints store.CheckpointStore
	// Hooks receive the trace events of every run.
	Hooks  []graph.TraceHook
	Logger log.Logger

	once     sync.Once
	runnable *graph.StateRunnable[*State]
	buildErr error
}

// NewWorkflow wires the three stages with the default review budget.
func NewWorkflow(structure *StructureGenerator, content *ContentFiller, validator *Validator) *Workflow {
	return &Workflow{
		Structure:           structure,
		Content:             content,
		Validator:           validator,
		MaxReviewIterations: DefaultMaxReviewIterations,
	}
}

// Run executes a new run. The returned state is non-nil even on error, so the caller can
// pass its RunID to Resume.
func (w *Workflow) Run(ctx context.Context, req Request) (*State, error) {
	state := &State{
		RunID:   uuid.NewString(),
		Request: req,
		Timings: make(map[string]time.Duration),
	}
	return w.invoke(ctx, state, "")
}

// Resume continues a run from its latest checkpoint, re-running the stage that follows it.
func (w *Workflow) Resume(ctx context.Context, runID string) (*State, error) {
	if w.Checkpoints == nil {
		return nil, fmt.Errorf("resume %s: no checkpoint store configured", runID)
	}
	cp, err := w.Checkpoints.Latest(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", runID, err)
	}
	saved, ok := cp.State.(*State)
	if !ok {
		return nil, fmt.Errorf("resume %s: checkpoint %s holds %T", runID, cp.ID, cp.State)
	}
	state := saved.Clone()

	next := w.after(ctx, cp.NodeName, state)
	log.OrDefault(w.Logger).Info("resuming run %s after %s at %s", runID, cp.NodeName, next)
	if next == graph.END {
		return state, nil
	}
	return w.invoke(ctx, state, next)
}

func (w *Workflow) invoke(ctx context.Context, state *State, from string) (*State, error) {
	runnable, err := w.compile()
	if err != nil {
		return state, err
	}

	tracer := graph.NewTracer()
	tracer.AddHook(graph.TraceHookFunc(w.logSpan))
	for _, h := range w.Hooks {
		tracer.AddHook(h)
	}
	runnable.SetTracer(tracer)

	// Each review iteration costs three steps.
	steps := 3*(w.MaxReviewIterations+1) + 1
	out, err := runnable.InvokeWithConfig(ctx, state, &graph.Config{
		RunID:      state.RunID,
		ResumeFrom: from,
		MaxSteps:   steps,
	})
	if out == nil {
		out = state
	}
	return out, err
}

// compile builds the state graph once. The runnable itself is shared; tracers are per run.
func (w *Workflow) compile() (*graph.StateRunnable[*State], error) {
	w.once.Do(func() {
		g := graph.NewStateGraph[*State]()
		g.AddNode(StageStructure, "Generate the conversation structure", w.stage(StageStructure, w.structureStage))
		g.AddNode(StageContent, "Write dialogue for every node", w.stage(StageContent, w.contentStage))
		g.AddNode(StageValidate, "Score the filled graph", w.stage(StageValidate, w.validateStage))

		g.SetEntryPoint(StageStructure)
		g.AddEdge(StageStructure, StageContent)
		g.AddConditionalEdge(StageContent, func(ctx context.Context, s *State) string {
			return w.after(ctx, StageContent, s)
		})
		g.AddConditionalEdge(StageValidate, func(ctx context.Context, s *State) string {
			return w.after(ctx, StageValidate, s)
		})
		g.SetRetryPolicy(w.RetryPolicy)

		w.runnable, w.buildErr = g.Compile()
	})
	if w.runnable == nil {
		return nil, w.buildErr
	}
	// A shallow copy lets concurrent runs hold their own tracer.
	r := *w.runnable
	return &r, nil
}

// after returns the stage that follows a completed stage.
func (w *Workflow) after(_ context.Context, stage string, s *State) string {
	switch stage {
	case StageStructure:
		return StageContent
	case StageContent:
		if w.SkipValidation {
			return graph.END
		}
		return StageValidate
	case StageValidate:
		if s.Verdict != nil && !s.Verdict.IsValid && s.Iteration <= w.MaxReviewIterations {
			return StageStructure
		}
		return graph.END
	}
	return graph.END
}

// stage wraps a stage function with timing, span metadata and checkpointing.
func (w *Workflow) stage(name string, fn func(ctx context.Context, s *State) error) func(ctx context.Context, s *State) (*State, error) {
	return func(ctx context.Context, s *State) (*State, error) {
		start := time.Now()
		if err := fn(ctx, s); err != nil {
			s.logf("%s failed: %v", name, err)
			return s, err
		}
		elapsed := time.Since(start)
		s.Timings[name] += elapsed

		if span := graph.SpanFromContext(ctx); span != nil {
			span.Metadata["iteration"] = s.Iteration
			if s.Graph != nil {
				span.Metadata["nodes"] = s.Graph.Len()
				span.Metadata["nodes_filled"] = s.Graph.FilledCount()
			}
			if name == StageValidate && s.Verdict != nil {
				span.Metadata["min_score"] = s.Verdict.MinScore
				span.Metadata["valid"] = s.Verdict.IsValid
			}
		}

		if err := w.checkpoint(ctx, name, s); err != nil {
			return s, err
		}
		return s, nil
	}
}

func (w *Workflow) checkpoint(ctx context.Context, stage string, s *State) error {
	if w.Checkpoints == nil {
		return nil
	}
	existing, err := w.Checkpoints.List(ctx, s.RunID)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	version := 1
	if n := len(existing); n > 0 {
		version = existing[n-1].Version + 1
	}
	return w.Checkpoints.Save(ctx, &store.Checkpoint{
		ID:        uuid.NewString(),
		RunID:     s.RunID,
		NodeName:  stage,
		State:     s.Clone(),
		Metadata:  map[string]any{"iteration": s.Iteration},
		Timestamp: time.Now(),
		Version:   version,
	})
}

func (w *Workflow) structureStage(ctx context.Context, s *State) error {
	g, err := w.Structure.Generate(ctx, s.Request.Character, s.Request.Goal, s.Request.Constraints)
	if err != nil {
		return err
	}
	s.Iteration++
	s.Verdict = nil
	s.Graph = g
	s.Graph.SetMetadata("run_id", s.RunID)
	s.Graph.SetMetadata("iteration", s.Iteration)
	s.Graph.SetMetadata("character", s.Request.Character.Name)
	s.logf("structure: %d nodes (iteration %d)", g.Len(), s.Iteration)
	return nil
}

func (w *Workflow) contentStage(ctx context.Context, s *State) error {
	if s.Graph == nil {
		return fmt.Errorf("content stage: no graph in state")
	}
	// Fill a copy so a failed fill leaves the checkpointed structure untouched.
	work := s.Graph.Clone()
	if _, err := w.Content.Fill(ctx, work, s.Request.Character, s.Request.Goal); err != nil {
		return err
	}
	s.Graph = work
	s.logf("content: %d/%d nodes filled", work.FilledCount(), work.Len())
	return nil
}

func (w *Workflow) validateStage(ctx context.Context, s *State) error {
	if s.Graph == nil {
		return fmt.Errorf("validate stage: no graph in state")
	}
	verdict, err := w.Validator.Validate(ctx, s.Graph, s.Request.Character, s.Request.Goal, s.Request.Constraints)
	if err != nil {
		return err
	}
	s.Verdict = verdict
	if err := s.Graph.SetValidationScore(verdict.Normalized()); err != nil {
		return err
	}
	s.logf("validate: valid=%t min=%d", verdict.IsValid, verdict.MinScore)
	return nil
}

func (w *Workflow) logSpan(_ context.Context, span *graph.TraceSpan) {
	logger := log.OrDefault(w.Logger)
	switch span.Event {
	case graph.TraceEventNodeStart:
		logger.Debug("[%s] stage %s started", span.RunID, span.NodeName)
	case graph.TraceEventNodeEnd:
		logger.Info("[%s] stage %s done in %v", span.RunID, span.NodeName, span.Duration.Round(time.Millisecond))
	case graph.TraceEventNodeError:
		logger.Error("[%s] stage %s failed: %v", span.RunID, span.NodeName, span.Error)
	case graph.TraceEventEdgeTraversal:
		logger.Debug("[%s] %s -> %s", span.RunID, span.FromNode, span.ToNode)
	}
}
