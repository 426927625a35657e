package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pior/kt"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, found, err := client.Get(cmd.Context(), []byte(args[0]))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("key not found: %s", args[0])
			}
			fmt.Println(string(value))
			return nil
		},
	}

	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			xt, err := expiration(cmd)
			if err != nil {
				return err
			}
			if err := client.Set(cmd.Context(), []byte(args[0]), []byte(args[1]), xt); err != nil {
				return err
			}
			fmt.Println("stored")
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:     "remove [key]",
		Aliases: []string{"rm", "del"},
		Short:   "Remove a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := client.Remove(cmd.Context(), []byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Println(outcome(removed, "removed", "not found"))
			return nil
		},
	}

	addCmd = &cobra.Command{
		Use:   "add [key] [value]",
		Short: "Store a value only if the key does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			xt, err := expiration(cmd)
			if err != nil {
				return err
			}
			added, err := client.Add(cmd.Context(), []byte(args[0]), []byte(args[1]), xt)
			if err != nil {
				return err
			}
			fmt.Println(outcome(added, "stored", "already exists"))
			return nil
		},
	}

	replaceCmd = &cobra.Command{
		Use:   "replace [key] [value]",
		Short: "Store a value only if the key exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			xt, err := expiration(cmd)
			if err != nil {
				return err
			}
			replaced, err := client.Replace(cmd.Context(), []byte(args[0]), []byte(args[1]), xt)
			if err != nil {
				return err
			}
			fmt.Println(outcome(replaced, "stored", "not found"))
			return nil
		},
	}

	casCmd = &cobra.Command{
		Use:   "cas [key] [old] [new]",
		Short: "Swap the value of a key if it equals old (use --absent / --remove for missing sides)",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			absent, _ := cmd.Flags().GetBool("absent")
			remove, _ := cmd.Flags().GetBool("remove")

			rest := args[1:]
			var oval, nval []byte
			if !absent {
				if len(rest) == 0 {
					return fmt.Errorf("missing old value")
				}
				oval, rest = []byte(rest[0]), rest[1:]
			}
			if !remove {
				if len(rest) == 0 {
					return fmt.Errorf("missing new value")
				}
				nval = []byte(rest[0])
			}

			xt, err := expiration(cmd)
			if err != nil {
				return err
			}
			swapped, err := client.CAS(cmd.Context(), []byte(args[0]), oval, nval, xt)
			if err != nil {
				return err
			}
			fmt.Println(outcome(swapped, "swapped", "value mismatch"))
			return nil
		},
	}

	seizeCmd = &cobra.Command{
		Use:   "seize [key]",
		Short: "Print the value of a key and remove it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, found, err := client.Seize(cmd.Context(), []byte(args[0]))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("key not found: %s", args[0])
			}
			fmt.Println(string(value))
			return nil
		},
	}

	incrementCmd = &cobra.Command{
		Use:   "increment [key] [num]",
		Short: "Add num to an integer record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("num must be an integer: %w", err)
			}
			orig, _ := cmd.Flags().GetInt64("orig")
			xt, err := expiration(cmd)
			if err != nil {
				return err
			}
			n, err := client.Increment(cmd.Context(), []byte(args[0]), num, orig, xt)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}

	incrementDoubleCmd = &cobra.Command{
		Use:   "increment-double [key] [num]",
		Short: "Add num to a decimal record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("num must be a number: %w", err)
			}
			origin, _ := cmd.Flags().GetString("orig")
			var orig float64
			switch origin {
			case "set":
				orig = kt.OriginSet
			case "try":
				orig = kt.OriginTry
			default:
				if orig, err = strconv.ParseFloat(origin, 64); err != nil {
					return fmt.Errorf("orig must be a number, set or try: %w", err)
				}
			}
			xt, err := expiration(cmd)
			if err != nil {
				return err
			}
			v, err := client.IncrementDouble(cmd.Context(), []byte(args[0]), num, orig, xt)
			if err != nil {
				return err
			}
			fmt.Println(strconv.FormatFloat(v, 'f', -1, 64))
			return nil
		},
	}

	mgetCmd = &cobra.Command{
		Use:   "mget [key]...",
		Short: "Print the values of several keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			atomic, _ := cmd.Flags().GetBool("atomic")
			keys := make([][]byte, len(args))
			for i, a := range args {
				keys[i] = []byte(a)
			}
			result, err := client.GetBulk(cmd.Context(), keys, atomic)
			if err != nil {
				return err
			}
			for _, rec := range result.Records() {
				fmt.Printf("%s\t%s\n", rec.Key, rec.Value)
			}
			return nil
		},
	}

	matchCmd = &cobra.Command{
		Use:   "match [prefix]",
		Short: "List keys starting with prefix (or matching --regex)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regex, _ := cmd.Flags().GetString("regex")
			limit, _ := cmd.Flags().GetInt64("max")

			var (
				keys [][]byte
				err  error
			)
			switch {
			case regex != "":
				keys, err = client.MatchRegex(cmd.Context(), regex, limit)
			case len(args) == 1:
				keys, err = client.MatchPrefix(cmd.Context(), []byte(args[0]), limit)
			default:
				return fmt.Errorf("give a prefix or --regex")
			}
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(string(k))
			}
			return nil
		},
	}

	scriptCmd = &cobra.Command{
		Use:   "script [name] [key=value]...",
		Short: "Run a server-side script procedure",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]kt.KeyValue, 0, len(args)-1)
			for _, a := range args[1:] {
				k, v, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("parameter %q is not key=value", a)
				}
				params = append(params, kt.KeyValue{Key: []byte(k), Value: []byte(v)})
			}

			run := client.PlayScript
			if binary, _ := cmd.Flags().GetBool("binary"); binary {
				run = client.PlayScriptBinary
			}
			result, err := run(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			for _, rec := range result.Records() {
				fmt.Printf("%s\t%s\n", rec.Key, rec.Value)
			}
			return nil
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every record of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.Clear(cmd.Context())
		},
	}

	voidCmd = &cobra.Command{
		Use:     "void",
		Aliases: []string{"ping"},
		Short:   "Check the server round trip",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Void(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	syncCmd = &cobra.Command{
		Use:   "synchronize",
		Short: "Flush the database to storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hard, _ := cmd.Flags().GetBool("hard")
			command, _ := cmd.Flags().GetString("command")
			return client.Synchronize(cmd.Context(), hard, command)
		},
	}

	vacuumCmd = &cobra.Command{
		Use:   "vacuum",
		Short: "Reclaim expired records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			step, _ := cmd.Flags().GetInt64("step")
			return client.Vacuum(cmd.Context(), step)
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the database status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			printMap(status)
			return nil
		},
	}

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Print the server report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := client.Report(cmd.Context())
			if err != nil {
				return err
			}
			printMap(report)
			return nil
		},
	}
)

func init() {
	addExpirationFlags(setCmd, addCmd, replaceCmd, casCmd, incrementCmd, incrementDoubleCmd)

	casCmd.Flags().Bool("absent", false, "require the key to be absent (no old value)")
	casCmd.Flags().Bool("remove", false, "remove the key on match (no new value)")
	incrementCmd.Flags().Int64("orig", 0, "initial value of a missing record")
	incrementDoubleCmd.Flags().String("orig", "0", "initial value of a missing record, or set / try")
	mgetCmd.Flags().Bool("atomic", false, "read all keys atomically (uses TSV-RPC)")
	matchCmd.Flags().String("regex", "", "match keys against this regular expression")
	matchCmd.Flags().Int64("max", -1, "maximum number of keys (negative for no limit)")
	scriptCmd.Flags().Bool("binary", false, "use the binary protocol")
	syncCmd.Flags().Bool("hard", false, "synchronize physically")
	syncCmd.Flags().String("command", "", "postprocessing command to run on the server")
	vacuumCmd.Flags().Int64("step", 0, "records per step (0 for the whole database)")
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func printMap(m map[string]string) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		fmt.Printf("%s\t%s\n", k, m[k])
	}
}
