// Package pipeline turns a character and a goal into a filled, scored conversation graph.
//
// The three stages can be used on their own:
//
//   - StructureGenerator asks the model for the skeleton and builds a validated
//     dialog.Graph from the untrusted payload (BuildGraph).
//   - ContentFiller visits the graph breadth-first from the root and writes NPC text and
//     player choices into each node, using the node's ancestors as history and its
//     children as lookahead. A choice routed outside the node's children fails the fill
//     with ErrChoiceRouting.
//   - Validator scores the filled graph. A verdict is valid when no criterion scores 2 or
//     lower; an empty score set is ErrEmptyEvaluation.
//
// Workflow chains them on a graph.StateGraph, regenerates the structure while the verdict
// is invalid and review iterations remain, and checkpoints the state after every stage so
// a failed run can be resumed.
//
// # Fill order and loops
//
// Loop branches add back-edges, so "fill a node after all its ancestors" cannot always
// hold. Nodes are filled in breadth-first discovery order from the root. With
// Concurrency > 1, a node waits only for the parents that precede it in that order; a
// parent discovered later is a back-edge and its content may or may not be in the
// node's history.
package pipeline
