// Package topology loads the static process membership and causal
// dependency configuration an LCB process needs at startup: the hosts file
// (spec §7.1) and the causal-broadcast config file (spec §7.2).
package topology

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Tomatosoup97/distributed-rust/internal/lcb"
)

// Node describes one member of the system: its identifier and the UDP
// address the reliable link sends datagrams to.
type Node struct {
	ID   lcb.NodeID
	IP   net.IP
	Port int
}

func (n Node) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: n.IP, Port: n.Port}
}

// Nodes maps every process in the system to its address, keyed by ID.
type Nodes map[lcb.NodeID]Node

// SortedIDs returns the member IDs in ascending order, for deterministic
// iteration (the broadcast fan-out order).
func (n Nodes) SortedIDs() []lcb.NodeID {
	ids := make([]lcb.NodeID, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// LoadHosts parses a hosts file: one "<id> <ip> <port>" line per process.
// Blank lines and lines starting with '#' are ignored.
func LoadHosts(path string) (Nodes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("topology: open hosts file: %w", err)
	}
	defer f.Close()

	nodes := Nodes{}
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("topology: hosts file line %d: expected 3 fields, got %d", lineNo, len(fields))
		}

		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("topology: hosts file line %d: bad id %q: %w", lineNo, fields[0], err)
		}

		ip := net.ParseIP(fields[1])
		if ip == nil {
			return nil, fmt.Errorf("topology: hosts file line %d: bad ip %q", lineNo, fields[1])
		}

		port, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("topology: hosts file line %d: bad port %q: %w", lineNo, fields[2], err)
		}

		nodes[lcb.NodeID(id)] = Node{ID: lcb.NodeID(id), IP: ip, Port: port}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("topology: read hosts file: %w", err)
	}

	return nodes, nil
}

// CausalityMap records, for each owner, the set of owners it causally
// depends on — the dependency lists read from the config file.
type CausalityMap map[lcb.OwnerID][]lcb.OwnerID

// InvertedCausalityMap maps an owner to every owner that depends on it,
// the form the delivered-state algorithm walks when a new message might
// unblock something already buffered.
type InvertedCausalityMap map[lcb.OwnerID][]lcb.OwnerID

// Invert builds the inverted form of a CausalityMap.
func Invert(cm CausalityMap) InvertedCausalityMap {
	inv := InvertedCausalityMap{}

	for owner, deps := range cm {
		for _, dep := range deps {
			inv[dep] = append(inv[dep], owner)
		}
	}

	return inv
}

// Config is the parsed causal-broadcast config file: the number of
// messages each process broadcasts, and the causal dependency list for
// every process, keyed by its 1-indexed position in the file.
type Config struct {
	MessagesCount int
	Causality     CausalityMap
}

// LoadConfig parses the config file: the first line holds the per-process
// message count, and each subsequent line lists the owner IDs the process
// at that line number (1-indexed) causally depends on.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("topology: open config file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	if !scanner.Scan() {
		return Config{}, fmt.Errorf("topology: config file is empty")
	}

	count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return Config{}, fmt.Errorf("topology: bad message count %q: %w", scanner.Text(), err)
	}

	cfg := Config{MessagesCount: count, Causality: CausalityMap{}}
	proc := lcb.OwnerID(1)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			proc++
			continue
		}

		var deps []lcb.OwnerID
		for _, field := range strings.Fields(line) {
			id, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return Config{}, fmt.Errorf("topology: bad dependency id %q: %w", field, err)
			}

			deps = append(deps, lcb.OwnerID(id))
		}

		cfg.Causality[proc] = deps
		proc++
	}

	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("topology: read config file: %w", err)
	}

	return cfg, nil
}
