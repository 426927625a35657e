// Command kt-cli runs Kyoto Tycoon operations from the command line.
//
// Connection settings come from flags, KT_* environment variables, or a
// .env / .env.local file in the working directory:
//
//	kt-cli --addr localhost:1978 set greeting hello --ttl 60
//	KT_ENCODING=url kt-cli get greeting
//	kt-cli repl --metrics-addr :9100
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
