// Gloomctl is the command-line client for gloomd.
//
// Usage:
//
//	gloomctl [--socket PATH | --network tcp --address HOST:PORT] [--debug] COMMAND ARGS...
//
// Commands:
//
//	init NAME [CAPACITY [ERROR_RATE [SEED]]]
//	add NAME VALUE...
//	exists NAME VALUE...
//	merge TARGET SOURCE
//	del NAME
//	info NAME
//	list
//	dump NAME FILE
//	restore NAME FILE [--replace]
//	status
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	gloom "github.com/jcalabro/gloomd"
	"github.com/jcalabro/gloomd/internal/service"
)

const defaultSocket = "/run/gloomd/gloomd.sock"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type usageError string

func (e usageError) Error() string {
	return "usage: gloomctl " + string(e)
}

func run(args []string, stdout, stderr io.Writer) error {
	var (
		socketPath string
		network    string
		address    string
		timeout    time.Duration
		replace    bool
		debug      bool
	)

	flagSet := pflag.NewFlagSet("gloomctl", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", defaultSocket, "gloomd unix socket path")
	flagSet.StringVar(&network, "network", "unix", "unix or tcp")
	flagSet.StringVar(&address, "address", "", "host:port when --network=tcp")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	flagSet.BoolVar(&replace, "replace", false, "restore over an existing filter")
	flagSet.BoolVar(&debug, "debug", false, "print raw responses to stderr")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	positional := flagSet.Args()
	if len(positional) == 0 {
		return usageError("COMMAND [ARGS...]")
	}

	if network == "unix" && address == "" {
		address = socketPath
	}
	if address == "" {
		return errors.New("--address is required for --network=tcp")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := service.NewClient(network, address)
	if debug {
		client.Debug = stderr
	}
	c := &command{
		client: client,
		out:    stdout,
	}

	name, rest := positional[0], positional[1:]
	switch name {
	case "init":
		return c.init(ctx, rest)
	case "add":
		return c.add(ctx, rest)
	case "exists":
		return c.exists(ctx, rest)
	case "merge":
		if len(rest) != 2 {
			return usageError("merge TARGET SOURCE")
		}
		return c.ok(c.client.Merge(ctx, rest[0], rest[1]))
	case "del":
		if len(rest) != 1 {
			return usageError("del NAME")
		}
		return c.ok(c.client.Delete(ctx, rest[0]))
	case "info":
		if len(rest) != 1 {
			return usageError("info NAME")
		}
		info, err := c.client.Info(ctx, rest[0])
		if err != nil {
			return err
		}
		c.printInfo(info)
		return nil
	case "list":
		names, err := c.client.List(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(c.out, name)
		}
		return nil
	case "dump":
		return c.dump(ctx, rest)
	case "restore":
		return c.restore(ctx, rest, replace)
	case "status":
		status, err := c.client.Status(ctx)
		if err != nil {
			return err
		}
		started := time.Now().Add(-time.Duration(status.UptimeSeconds * float64(time.Second)))
		fmt.Fprintf(c.out, "filters: %s\nstarted: %s\n", humanize.Comma(int64(status.Filters)), humanize.Time(started))
		return nil
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

type command struct {
	client *service.Client
	out    io.Writer
}

func (c *command) ok(err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "OK")
	return nil
}

func (c *command) init(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 4 {
		return usageError("init NAME [CAPACITY [ERROR_RATE [SEED]]]")
	}

	var (
		capacity  *uint64
		errorRate *float64
		seed      *uint64
	)
	if len(args) > 1 {
		v, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("capacity %q: %w", args[1], err)
		}
		capacity = &v
	}
	if len(args) > 2 {
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("error rate %q: %w", args[2], err)
		}
		errorRate = &v
	}
	if len(args) > 3 {
		v, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("seed %q: %w", args[3], err)
		}
		seed = &v
	}

	_, err := c.client.Init(ctx, args[0], capacity, errorRate, seed)
	return c.ok(err)
}

func (c *command) add(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("add NAME VALUE...")
	}
	if len(args) == 2 {
		return c.ok(c.client.Add(ctx, args[0], []byte(args[1])))
	}
	return c.ok(c.client.AddMany(ctx, args[0], toBytes(args[1:])))
}

func (c *command) exists(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("exists NAME VALUE...")
	}
	if len(args) == 2 {
		present, err := c.client.Exists(ctx, args[0], []byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, flag(present))
		return nil
	}
	present, err := c.client.ExistsMany(ctx, args[0], toBytes(args[1:]))
	if err != nil {
		return err
	}
	for _, p := range present {
		fmt.Fprintln(c.out, flag(p))
	}
	return nil
}

func (c *command) dump(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("dump NAME FILE")
	}
	data, err := c.client.Dump(ctx, args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return fmt.Errorf("writing dump: %w", err)
	}
	fmt.Fprintf(c.out, "wrote %s to %s\n", humanize.Bytes(uint64(len(data))), args[1])
	return nil
}

func (c *command) restore(ctx context.Context, args []string, replace bool) error {
	if len(args) != 2 {
		return usageError("restore NAME FILE [--replace]")
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading dump: %w", err)
	}
	info, err := c.client.Restore(ctx, args[0], data, replace)
	if err != nil {
		return err
	}
	c.printInfo(info)
	return nil
}

func (c *command) printInfo(info gloom.Info) {
	fmt.Fprintf(c.out, "name:              %s\n", info.Name)
	fmt.Fprintf(c.out, "capacity:          %s\n", humanize.Comma(int64(info.Capacity)))
	fmt.Fprintf(c.out, "error rate:        %g\n", info.ErrorRate)
	fmt.Fprintf(c.out, "seed:              %d\n", info.Seed)
	fmt.Fprintf(c.out, "bits:              %s\n", humanize.Comma(int64(info.BitCount)))
	fmt.Fprintf(c.out, "hash functions:    %d\n", info.HashCount)
	fmt.Fprintf(c.out, "items added:       %s\n", humanize.Comma(int64(info.Count)))
	fmt.Fprintf(c.out, "size:              %s\n", humanize.IBytes(info.SizeBytes))
	fmt.Fprintf(c.out, "fill ratio:        %.4f\n", info.FillRatio)
	fmt.Fprintf(c.out, "estimated fp rate: %.6f\n", info.EstimatedFPRate)
}

func toBytes(values []string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

// flag renders membership the way the server does, as 1 or 0.
func flag(present bool) int {
	if present {
		return 1
	}
	return 0
}
