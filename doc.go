// Package jobmanager coordinates parallel, asynchronous jobs identified by an
// arbitrary comparable id. Callers submit jobs, the manager dispatches them
// concurrently under a configurable concurrency cap, aggregates per-job
// notifications onto a single shared stream, emits completion/failure events,
// and supports external cancellation by id.
package jobmanager
