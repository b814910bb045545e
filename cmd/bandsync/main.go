// Bandsync CLI entry point
//
// Bandsync is an offline-first sync engine for band collaboration data.
// It serves reads from a local snapshot cache while disconnected, queues
// writes in a durable outbox and replays them when connectivity returns.
package main

import "github.com/jbctechsolutions/bandsync/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
