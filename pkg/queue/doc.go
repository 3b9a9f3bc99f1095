// Package queue defines the durable offline mutation queue.
//
// A [Mutation] is a write the application wants applied to the remote
// backend. [Store.Add] persists it as a [Record], assigning an id, an
// enqueue timestamp and a zero retry counter. Records leave the store only
// when their replay succeeds or when the caller removes them explicitly.
//
// Two implementations ship with the module: the SQLite store in
// [github.com/bft-labs/syncq/pkg/queue/sqlite], which is the default, and
// [FileStore], a single JSON snapshot file rewritten atomically on every
// mutation. Both pass the conformance suite in
// [github.com/bft-labs/syncq/pkg/queue/queuetest].
//
// The store owns no business logic. It never decides whether a record is
// retried; it only reports retry counts through [Store.Stats].
package queue
