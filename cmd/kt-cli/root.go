package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pior/kt"
	"github.com/pior/kt/tsvrpc"
)

var (
	client *kt.Client
	logger zerolog.Logger

	rootCmd = &cobra.Command{
		Use:               "kt-cli",
		Short:             "Kyoto Tycoon command line client",
		SilenceUsage:      true,
		PersistentPreRunE: connect,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if client != nil {
				return client.Close()
			}
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("addr", "localhost:1978", "server address")
	flags.Duration("timeout", 5*time.Second, "per-call timeout")
	flags.Duration("write-timeout", 0, "bound on each write to the server (0 for none)")
	flags.String("encoding", "base64", "TSV-RPC column encoding (base64, url, raw)")
	flags.String("db", "", "database name or index for TSV-RPC calls")
	flags.Uint16("dbidx", 0, "database index for binary calls")
	flags.Bool("text-only", false, "send every call over TSV-RPC")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("breaker", false, "wrap calls in a circuit breaker")

	rootCmd.AddCommand(getCmd, setCmd, removeCmd, addCmd, replaceCmd, casCmd, seizeCmd,
		incrementCmd, incrementDoubleCmd, mgetCmd, matchCmd, scriptCmd, clearCmd,
		voidCmd, syncCmd, vacuumCmd, statusCmd, reportCmd, replCmd)
}

// initConfig loads env files and binds KT_* variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("kt")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func connect(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	config, err := clientConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), kt.DefaultDialTimeout)
	defer cancel()

	client, err = kt.Dial(ctx, viper.GetString("addr"), config)
	if err != nil {
		return err
	}
	logger.Debug().Str("addr", viper.GetString("addr")).Msg("connected")
	return nil
}

func clientConfig() (kt.Config, error) {
	enc, err := tsvrpc.ParseColumnEncoding(viper.GetString("encoding"))
	if err != nil {
		return kt.Config{}, err
	}

	config := kt.Config{
		Encoding:      enc,
		Database:      viper.GetString("db"),
		DatabaseIndex: uint16(viper.GetUint("dbidx")),
		TextOnly:      viper.GetBool("text-only"),
		Timeout:       viper.GetDuration("timeout"),
		WriteTimeout:  viper.GetDuration("write-timeout"),
		Logger:        &logger,
		OnOrphanError: func(err error) {
			fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		},
	}
	if viper.GetBool("breaker") {
		config.CircuitBreaker = kt.NewCircuitBreakerSettings("kt-cli", 1, time.Minute, 10*time.Second)
	}
	return config, nil
}

// expiration reads the --ttl and --at flags of cmd. A flag given on the
// command line goes through kt.After or kt.At, so negative values are rejected.
func expiration(cmd *cobra.Command) (kt.Expiration, error) {
	ttlSet := cmd.Flags().Changed("ttl")
	atSet := cmd.Flags().Changed("at")
	ttl, _ := cmd.Flags().GetInt64("ttl")
	at, _ := cmd.Flags().GetInt64("at")

	switch {
	case ttlSet && atSet:
		return kt.NoExpiration, fmt.Errorf("--ttl and --at are exclusive")
	case ttlSet:
		return kt.After(ttl)
	case atSet:
		return kt.At(at)
	default:
		return kt.NoExpiration, nil
	}
}

func addExpirationFlags(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.Flags().Int64("ttl", 0, "expire after this many seconds")
		cmd.Flags().Int64("at", 0, "expire at this Unix time")
	}
}
