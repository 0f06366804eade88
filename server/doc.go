// Package server serves the dialogue pipeline over HTTP with a chi router.
//
// Endpoints:
//
//	POST /v1/structure  character, goal and constraints in; unfilled dialog_tree out
//	POST /v1/content    dialog_tree, character and goal in; filled dialog_tree out
//	POST /v1/validate   dialog_tree with the request context in; verdict out
//	POST /v1/pipeline   full workflow with the review loop
//	GET  /health
//	GET  /metrics       Prometheus exposition
//
// Invalid requests answer 400. Model output that cannot be used (malformed JSON, a broken
// structure, choices routed to the wrong node, an empty evaluation) answers 502. Every
// successful body carries generation_time in seconds.
package server
