// Package traverse walks a dialog.Graph.
//
// Ancestors climbs parent links to rebuild the conversation history that precedes a node;
// Walk descends child links level by level. Both keep a visited set, so back-edges created
// by loop branches are safe. Content generation assembles all of its context from these two
// primitives.
package traverse
