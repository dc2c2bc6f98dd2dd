// Package model defines the provider‑agnostic abstractions and concrete
// helpers for interacting with language models inside codeagent.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Retry transient provider failures (WithRetry)
//   - Facilitate lightweight mocking for tests (MockModel, ScriptedModel)
//
// Providers (OpenAI, Anthropic, Ollama) implement the Model interface from this
// package so agents remain decoupled from vendor SDKs.
package model
