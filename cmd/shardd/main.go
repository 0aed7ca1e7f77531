// Command shardd runs a single shard core node: identity, storage, shard
// server, and protocol handlers. There is no interactive front end here -
// configuration is flags and a data directory, matching the spec's
// exclusion of the command-line front end and interactive prompts from the
// core itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/shardnet/core/build"
	"gitlab.com/shardnet/core/node"
)

func main() {
	var (
		dir       = flag.String("data-dir", "shardd-data", "persistent data directory")
		shardAddr = flag.String("shard-addr", ":9982", "address the shard HTTP server binds to")
	)
	flag.Parse()

	fmt.Printf("shardd v%s (%s)\n", build.Version, build.Release)

	n, err := node.New(node.Config{Dir: *dir, ShardAddr: *shardAddr})
	if err != nil {
		fmt.Fprintln(os.Stderr, "shardd: could not start node:", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	fmt.Println("caught stop signal, shutting down...")

	if err := n.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "shardd: error during shutdown:", err)
		os.Exit(1)
	}
}
