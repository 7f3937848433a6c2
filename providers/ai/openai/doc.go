// Package openai implements ai.Provider against the OpenAI Chat Completions
// API (and compatible endpoints such as Azure or OpenRouter).
//
// Configuration is read from OPENAI_API_KEY and OPENAI_API_BASE_URL and can
// be overridden with the With* builder methods.
package openai
