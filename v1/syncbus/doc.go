// Package syncbus propagates presence change events (a worker joined or left
// the active set) between processes. Implementations exist for in-process
// delivery, Redis pub/sub, NATS and Kafka, plus a circuit breaker decorator.
package syncbus
