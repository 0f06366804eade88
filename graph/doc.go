// Package graph is a small typed state-graph engine.
//
// A StateGraph[S] holds named nodes that each take and return a state of type S, static
// edges, conditional edges and an entry point. Compile checks the wiring; the resulting
// StateRunnable executes nodes one at a time until it reaches END.
//
// # Retries
//
// A RetryPolicy re-runs a failed node from its input state when the error matches one of
// the policy's RetryableErrors. Without a policy a failing node ends the run.
//
// # Tracing
//
// A Tracer emits TraceSpan events for the run, each node attempt and each edge taken.
// TraceHook implementations receive every event; package metrics feeds Prometheus from
// them and the pipeline uses them for logging.
//
//	tracer := graph.NewTracer()
//	tracer.AddHook(graph.TraceHookFunc(func(ctx context.Context, span *graph.TraceSpan) {
//		if span.Event == graph.TraceEventNodeEnd {
//			log.Info("%s took %v", span.NodeName, span.Duration)
//		}
//	}))
//	runnable.SetTracer(tracer)
package graph
