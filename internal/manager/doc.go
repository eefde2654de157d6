// Package manager coordinates model instances on top of pkg/llama. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - session.go: the Session and Loader seams; loader_llama.go is the native loader.
//   - types.go: internal state types (State, ModelInfo, Instance, Snapshot).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, ...).
//   - admission.go: per-instance queueing; at most one call runs on an engine.
//   - ensure.go / evict.go / unload.go: load, budget eviction, drain and close.
//   - inference.go / embeddings.go / state.go: the engine operations.
//   - metrics.go: engine call metrics; events.go: lifecycle events.
//
// Without the 'llama' build tag the default loader fails every load with
// llama.ErrNativeUnavailable, which IsDependencyUnavailable recognises.
package manager
