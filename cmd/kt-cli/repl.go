package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pior/kt"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell on one connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			serveMetrics(addr)
		}
		return repl(cmd.Context())
	},
}

func init() {
	replCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func serveMetrics(addr string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(kt.NewStatsCollector(client, "kt_cli"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
}

func repl(ctx context.Context) error {
	fmt.Println("Kyoto Tycoon CLI")
	fmt.Println("Commands: get, set, remove, incr, mget, match, status, stats, ping, help, quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		if command == "quit" || command == "exit" {
			return nil
		}

		start := time.Now()
		err := runLine(ctx, command, parts[1:])
		duration := time.Since(start)

		switch {
		case errors.Is(err, errUsage):
			fmt.Println(err)
		case err != nil:
			fmt.Printf("Error: %v (took %v)\n", err, duration)
		default:
			fmt.Printf("(took %v)\n", duration)
		}

		select {
		case <-client.Closed():
			return errors.New("connection closed")
		default:
		}
	}

	return scanner.Err()
}

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func runLine(ctx context.Context, command string, args []string) error {
	switch command {
	case "get":
		if len(args) != 1 {
			return usage("get <key>")
		}
		value, found, err := client.Get(ctx, []byte(args[0]))
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("Key not found")
			return nil
		}
		fmt.Printf("Value: %s\n", value)

	case "set":
		if len(args) < 2 || len(args) > 3 {
			return usage("set <key> <value> [ttl_seconds]")
		}
		xt := kt.NoExpiration
		if len(args) == 3 {
			ttl, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid TTL: %w", err)
			}
			if xt, err = kt.After(ttl); err != nil {
				return err
			}
		}
		if err := client.Set(ctx, []byte(args[0]), []byte(args[1]), xt); err != nil {
			return err
		}
		fmt.Println("Stored")

	case "remove", "del":
		if len(args) != 1 {
			return usage("remove <key>")
		}
		removed, err := client.Remove(ctx, []byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(outcome(removed, "Removed", "Key not found"))

	case "incr":
		if len(args) != 2 {
			return usage("incr <key> <num>")
		}
		num, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		n, err := client.Increment(ctx, []byte(args[0]), num, 0, kt.NoExpiration)
		if err != nil {
			return err
		}
		fmt.Println(n)

	case "mget":
		if len(args) == 0 {
			return usage("mget <key1> <key2> ...")
		}
		keys := make([][]byte, len(args))
		for i, a := range args {
			keys[i] = []byte(a)
		}
		result, err := client.GetBulk(ctx, keys, false)
		if err != nil {
			return err
		}
		for _, a := range args {
			if value, ok := result.Get([]byte(a)); ok {
				fmt.Printf("%s: %s\n", a, value)
			} else {
				fmt.Printf("%s: (not found)\n", a)
			}
		}

	case "match":
		if len(args) != 1 {
			return usage("match <prefix>")
		}
		keys, err := client.MatchPrefix(ctx, []byte(args[0]), -1)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(string(k))
		}

	case "status":
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		printMap(status)

	case "stats":
		s := client.Stats()
		fmt.Printf("Calls: binary=%d tsvrpc=%d in-flight=%d\n", s.BinaryCalls, s.TextCalls, s.InFlight)
		fmt.Printf("Gets: %d (hits %d)  Sets: %d  Removes: %d  Increments: %d\n", s.Gets, s.GetHits, s.Sets, s.Removes, s.Increments)
		fmt.Printf("Unmet: %d  Errors: %d  Timeouts: %d  Orphans: %d\n", s.Unmet, s.Errors, s.Timeouts, s.Orphans)
		fmt.Printf("Circuit breaker: %s\n", client.BreakerState())

	case "ping":
		if err := client.Void(ctx); err != nil {
			return err
		}
		fmt.Println("PONG")

	case "help":
		fmt.Println("Commands:")
		fmt.Println("  get <key>                 - Get a value by key")
		fmt.Println("  set <key> <value> [ttl]   - Set a key-value pair with optional TTL")
		fmt.Println("  remove <key>              - Remove a key")
		fmt.Println("  incr <key> <num>          - Increment an integer record")
		fmt.Println("  mget <key1> <key2>        - Get multiple keys at once")
		fmt.Println("  match <prefix>            - List keys with a prefix")
		fmt.Println("  status                    - Show database status")
		fmt.Println("  stats                     - Show client statistics")
		fmt.Println("  ping                      - Check the round trip")
		fmt.Println("  quit                      - Exit the CLI")

	default:
		return usage(fmt.Sprintf("unknown command %q, type 'help'", command))
	}
	return nil
}
