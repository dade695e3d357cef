// Command kvs-client is the KVS client CLI: ping, get, set, rm.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Tomatosoup97/distributed-rust/internal/kvs/client"
)

const defaultAddr = "127.0.0.1:4000"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

var errUsage = errors.New("usage: kvs-client <ping|get|set|rm> [args] --addr HOST:PORT")

func run(args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, errUsage)

		return 1
	}

	sub := args[0]
	rest := args[1:]

	flagSet := flag.NewFlagSet(sub, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	addr := flagSet.String("addr", defaultAddr, "server address")

	if err := flagSet.Parse(rest); err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	positional := flagSet.Args()

	c, err := client.Dial(*addr)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}
	defer func() { _ = c.Close() }()

	switch sub {
	case "ping":
		return runPing(c, out, errOut)
	case "get":
		return runGet(c, positional, out, errOut)
	case "set":
		return runSet(c, positional, out, errOut)
	case "rm":
		return runRemove(c, positional, out, errOut)
	default:
		fmt.Fprintln(errOut, errUsage)

		return 1
	}
}

func runPing(c *client.Client, out, errOut io.Writer) int {
	if err := c.Ping(); err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	fmt.Fprintln(out, "Pong")

	return 0
}

func runGet(c *client.Client, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: kvs-client get KEY")

		return 1
	}

	value, ok, err := c.Get(args[0])
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	if !ok {
		fmt.Fprintln(out, "Key not found")

		return 0
	}

	fmt.Fprintln(out, value)

	return 0
}

func runSet(c *client.Client, args []string, out, errOut io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(errOut, "usage: kvs-client set KEY VALUE")

		return 1
	}

	if err := c.Set(args[0], args[1]); err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	return 0
}

func runRemove(c *client.Client, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: kvs-client rm KEY")

		return 1
	}

	if err := c.Remove(args[0]); err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	return 0
}
