// Package syncq is an embeddable offline mutation queue with background
// synchronization.
//
// Writes made while the network is unreliable are persisted locally and
// replayed against a remote backend once connectivity returns. Each record
// is attempted at most MaxRetries times; records that reach the cap stay in
// the queue as permanently failed until the application clears or discards
// them.
//
// # Basic Usage
//
//	cfg := syncq.DefaultConfig()
//	cfg.DBPath = "/var/lib/myapp/queue.db"
//	cfg.ServiceURL = "https://api.example.com"
//	cfg.ProbeURL = "https://api.example.com/health"
//
//	client, err := syncq.New(cfg, syncq.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Start(ctx); err != nil {
//	    return err
//	}
//	defer client.Stop()
//
//	id, err := client.Enqueue(ctx, "user-1", "todos", syncq.OpCreate,
//	    json.RawMessage(`{"title":"milk"}`), sessionToken)
//
// # Connectivity
//
// The client tracks connectivity through a Signal: an HTTP reachability
// probe when ProbeURL is set, a custom one via WithSignal, or always-online
// otherwise. Transitions are reported to OnConnectionChange subscribers,
// which also hear about every completed drain.
//
// # Background Retry
//
// When a mutation is enqueued while offline, the client registers with the
// background agent. With SpoolDir set, registration writes a marker file and
// a watcher in any process running the client wakes the queue.
//
// # Deployment
//
// Run exactly one client per durable store. Two processes draining the same
// database can apply a record twice.
package syncq
