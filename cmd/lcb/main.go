package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/runtime"
	"github.com/Tomatosoup97/distributed-rust/internal/lcb/topology"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, errOut io.Writer) int {
	logger := log.New(errOut, "lcb: ", log.LstdFlags)

	flags := pflag.NewFlagSet("lcb", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)

	id := flags.Uint32("id", 0, "this process's node id")
	hostsPath := flags.String("hosts", "", "path to the hosts file")
	outputPath := flags.String("output", "", "path to the output log file")
	configPath := flags.String("config", "", "path to the causal broadcast config file")
	retransMS := flags.Int("retransmission-offset-ms", 200, "retransmission offset in milliseconds")
	verbose := flags.Bool("verbose", false, "emit human-readable log lines instead of task-compatible ones")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(errOut, err)

		return 1
	}

	if *hostsPath == "" || *outputPath == "" || *configPath == "" {
		fmt.Fprintln(errOut, "lcb: --id, --hosts, --output and --config are all required")

		return 1
	}

	nodes, err := topology.LoadHosts(*hostsPath)
	if err != nil {
		fmt.Fprintln(errOut, err)

		return 1
	}

	self := lcb.NodeID(*id)

	selfNode, ok := nodes[self]
	if !ok {
		fmt.Fprintln(errOut, lcb.ErrUndefinedNode(self))

		return 1
	}

	cfg, err := topology.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(errOut, err)

		return 1
	}

	outFile, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintln(errOut, err)

		return 1
	}
	defer outFile.Close()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: selfNode.IP, Port: selfNode.Port})
	if err != nil {
		fmt.Fprintln(errOut, err)

		return 1
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(runtime.Config{
		Self:                 self,
		Nodes:                nodes,
		Causality:            cfg.Causality,
		Conn:                 conn,
		RetransmissionOffset: time.Duration(*retransMS) * time.Millisecond,
		MessagesCount:        cfg.MessagesCount,
		Output:               outFile,
		Verbose:              *verbose,
		Logger:               logger,
	})

	rt.Run(ctx)

	return 0
}
