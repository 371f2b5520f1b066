// Package hotrun runs a program from an entry file and restarts it whenever
// that file changes on disk, however the change was made.
//
// Editors and build tools replace files in different ways: some overwrite the
// file in place, some delete it and write a new one, and some write a
// temporary file and rename it over the original. The operating system
// reports each of these as a different sequence of notifications. hotrun
// folds all of them into one restart per edit:
//
//	sup, err := hotrun.New("./server.js", hotrun.WithInterpreter("node"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := sup.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for line := range sup.Output() {
//	    fmt.Printf("[gen %d] %s\n", line.Generation, line.Text)
//	}
//
// # Pipeline
//
// An EventSource watches the entry file's directory and reports raw created,
// modified, removed and renamed-to events for the file. A Coalescer keeps a
// small existence state machine per file:
//
//   - a removal starts a grace period instead of firing
//   - a creation or rename onto the path ends the grace period
//   - modifications are debounced and then compared by Fingerprint
//     (size, modification time and inode)
//
// and emits one ChangeEvent per logical edit, or a FileRemoved Notice when
// the file goes away for good. The Supervisor consumes ChangeEvents on a single
// goroutine: it terminates the running child (SIGTERM, then SIGKILL after the
// stop timeout), waits for it to exit, and spawns the next generation.
//
// # Generations
//
// The first child is generation 0. Every restart increments the generation by
// one and passes it to the child in the HOTRUN_GENERATION environment
// variable, so the program can report which execution it is.
//
// # Errors
//
// Watch setup failures (ErrWatchSetup, ErrWatchUnavailable) and spawn
// failures (ErrSpawn) are fatal and returned from Start or Wait. Spawn
// failures are never retried, so a broken entry file cannot crash-loop.
package hotrun
