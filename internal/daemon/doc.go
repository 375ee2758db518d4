// Package daemon runs the atlas background process for one project.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - Daemon: owns the lock, the pid marker and the ordered start and stop
//     of everything below
//   - FileWatcher: recursive fsnotify watching with a single debounce timer;
//     each flushed batch marks the cache dirty and queues source-changed
//   - Notifier: maps notify requests from signal sources to queue events and
//     drops signals from stale sessions
//
// The queue consumer runs the workflow engine, which is the only writer of
// the index, workflow.json, baselines and session state. Queries are served
// from the cache over the socket and never wait for a build.
//
// # Lifecycle
//
//	d, err := daemon.New(cfg, daemon.Options{Sink: sink, Version: version})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run fails before any watcher starts when the state directory is not
// writable (ErrStateDirUnwritable) or another daemon holds the lock
// (ErrAlreadyRunning). It returns when ctx is cancelled or a session-end
// signal for the current session has been processed.
//
// Shutdown runs in a fixed order: stop the watcher (flushing its pending
// batch), drain the queue up to daemon.drain_timeout, stop the queue, flush
// the cache, close the socket, stop the dashboard, close the event log,
// remove daemon.pid and release daemon.lock.
package daemon
