// Package internal holds shared helpers that must not become part of the
// public API surface: random identifier generation, one-time-code
// generation, and token digest helpers.
package internal
