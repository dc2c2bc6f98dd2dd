// Package agent implements multi-step agents that solve tasks in a ReAct
// loop: the model reasons, takes an action, observes the result and repeats
// until it produces a final answer.
//
// Two concrete agents share the loop in MultiStepAgent:
//
//   - CodeAgent writes its actions as Python snippets that are run by a
//     code.Executor. Tools are plain functions inside that code and the loop
//     ends when the code calls final_answer.
//   - ToolCallingAgent uses the model's native function calling. Tool calls of
//     one step run concurrently and the final_answer tool ends the loop.
//
// Every step is recorded in a memory.AgentMemory, which is also what the model
// sees on the next step. Step local failures (unparsable output, failing code,
// failing tools) are written to memory so the model can correct itself; model
// generation failures abort the run.
//
// Any agent can be handed to another agent as a tool via NewManagedAgentTool.
package agent
