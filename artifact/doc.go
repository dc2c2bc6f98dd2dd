// Package artifact contains concrete implementations of core.ArtifactStore.
//
// Artifacts are named byte blobs scoped by session id, such as the final
// answer of a run. Callers depend on the core interface so the in-memory,
// filesystem and object storage (sub-package s3) backends can be swapped
// without touching calling code.
package artifact
