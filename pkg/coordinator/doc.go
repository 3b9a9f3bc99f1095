// Package coordinator drains the mutation queue against the remote backend.
//
// A Coordinator is either idle or running a drain. SyncNow starts a drain
// only when the connectivity monitor reports online and no other drain is in
// progress; otherwise it returns a zero Result immediately. A drain works on
// a snapshot of the queue taken at its start. Records whose retry count has
// reached the cap are counted as failed without being attempted. Each
// attempt is bounded by a timeout, and a failure in one record never stops
// the others.
//
// Exactly one Coordinator may drain a given durable store. Two processes
// draining the same database can apply a record twice; this is not
// detected.
package coordinator
