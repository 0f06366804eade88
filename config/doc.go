// Package config loads dialoggraph settings from .env files and the environment.
//
// Model settings are grouped by prefix with a double underscore as the nested delimiter:
// LLM_BASE__MODEL sets the model for every stage, and LLM_TREE__MODEL, LLM_CONTENT__MODEL or
// LLM_VALIDATOR__MODEL override it for one stage. Every field (PROVIDER, API_KEY, BASE_URL,
// MODEL, TEMPERATURE, MAX_TOKENS) can be overridden on its own.
//
// Other variables:
//
//	MAX_SELF_REVIEW_ITERATIONS  regenerations allowed after a failed validation (default 2)
//	CONTENT_CONCURRENCY         parallel content generation calls (default 1)
//	LOG_LEVEL                   debug, info, warn, error or none (default info)
//	HTTP_ADDR                   listen address for the HTTP server (default :8080)
package config
