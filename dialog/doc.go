// Package dialog defines the conversation graph generated for a non-player character.
//
// A Graph holds Nodes keyed by id. Each node carries narrative metadata written by the
// structure stage and, once filled, the NPC line and the player's choices. Graphs are only
// built through NewGraph (or JSON decoding, which calls it), so every Graph in circulation
// satisfies the structural invariants:
//
//   - the root exists and has no parents
//   - every child and parent reference names an existing node
//   - parent and child links are symmetric
//   - every non-root node has at least one parent
//   - node ids are unique
//
// Loop branches may introduce back-edges, so a Graph is not necessarily acyclic.
package dialog
