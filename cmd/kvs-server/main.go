// Command kvs-server runs the KVS wire server.
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Tomatosoup97/distributed-rust/internal/fsx"
	"github.com/Tomatosoup97/distributed-rust/internal/kvs"
	"github.com/Tomatosoup97/distributed-rust/internal/kvs/engineguard"
	"github.com/Tomatosoup97/distributed-rust/internal/kvs/server"
)

const (
	defaultAddr   = "127.0.0.1:4000"
	defaultEngine = "kvs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("kvs-server", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	addr := flagSet.String("addr", defaultAddr, "listen address")
	engine := flagSet.String("engine", defaultEngine, "storage engine: kvs|sled")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)

		return 1
	}

	if *engine != "kvs" && *engine != "sled" {
		fmt.Fprintf(errOut, "error: unknown engine %q\n", *engine)

		return 1
	}

	logger := log.New(errOut, "kvs-server: ", log.LstdFlags)

	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)

		return 1
	}

	fs := fsx.NewReal()

	if err := engineguard.Ensure(workDir, *engine, fs); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)

		return 1
	}

	if *engine != "kvs" {
		fmt.Fprintf(errOut, "error: engine %q is not implemented by this build\n", *engine)

		return 1
	}

	store, err := kvs.Open(workDir, fs)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)

		return 1
	}
	defer func() { _ = store.Close() }()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)

		return 1
	}
	defer func() { _ = ln.Close() }()

	fmt.Fprintf(out, "kvs-server listening on %s (engine=%s)\n", *addr, *engine)

	srv := server.New(store, logger)
	if err := srv.Serve(ln); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)

		return 1
	}

	return 0
}
