// Package llm connects the dialogue pipeline to a language model.
//
// Every stage talks to the model through Generator, which takes a prompt and a system prompt
// and returns a decoded JSON object. Two providers are included: ModelGenerator wraps any
// langchaingo llms.Model, and OpenAIGenerator calls an OpenAI compatible endpoint through
// go-openai with the json_object response format. Payloads are converted into typed values
// with Decode, so shape errors surface as ErrMalformedResponse before any graph is built.
package llm
