// Package model defines the provider-agnostic text generation abstraction
// used by the chat task.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface in their own
// sub-packages so task implementations stay decoupled from vendor SDKs.
package model
