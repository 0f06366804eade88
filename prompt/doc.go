// Package prompt renders the prompts sent to the model by each pipeline stage.
//
// Templates are embedded text files executed with text/template. Node context (ancestor
// history and lookahead) is computed by the caller with package traverse and passed in as
// a NodeContext.
package prompt
