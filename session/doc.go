// Package session houses concrete implementations of core.SessionStore.
//
// A session store keeps the memory snapshot of an agent between runs so a
// later run on the same session id continues the conversation. Callers depend
// on the core interface; only the wiring layer (runner, CLI) decides which
// backend to instantiate.
package session
