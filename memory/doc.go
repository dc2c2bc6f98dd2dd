// Package memory records what happens during an agent run as a sequence of
// typed steps (system prompt, task, planning, action, final answer) and
// converts them back into the message history sent to the model.
//
// AgentMemory snapshots are plain JSON so they can be stored by any
// core.SessionStore and restored to continue a conversation in a later run.
package memory
