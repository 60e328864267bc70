// Package bridge exposes the host's instance store over TCP.
//
// Hosts without an embedded interpreter (Harmony, TVPaint, remote
// sessions) talk to the pipeline through a socket. Each connection is
// served by its own goroutine, which decodes newline-delimited JSON
// requests and posts the store operation onto the main-thread queue, so
// the store is only ever touched from the consumer goroutine.
//
// Protocol, one JSON object per line in each direction:
//
//	-> {"id": 1, "method": "read", "params": {"id": "3f1c..."}}
//	<- {"id": 1, "result": {"family": "render", ...}}
//	<- {"id": 2, "error": {"code": "not_found", "message": "..."}}
//
// Methods: list, read, write, delete. Client implements
// store.InstanceStore on top of a connection.
//
// Lifecycle:
//
//	srv := bridge.NewServer(st, queue, bridge.WithLogger(logger))
//	srv.Start(ctx, "127.0.0.1:0")  // accept loop in the background
//	// ... queue.Run(ctx, interval) on the main thread ...
//	srv.Stop()                     // closes the listener, waits for connections
package bridge
