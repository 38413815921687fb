package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/gridRPC/cmd/call"
	"github.com/ValentinKolb/gridRPC/cmd/kv"
	"github.com/ValentinKolb/gridRPC/cmd/serve"
	"github.com/ValentinKolb/gridRPC/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "grid",
		Short: "clustered rpc framework",
		Long: fmt.Sprintf(`gridRPC (v%s)

An RPC framework for grids of servers: servants are addressed by name,
calls are retried and correlated by the client, and the members of a grid
are tracked in a coordination service and routed by mod, master/slave or
a consistent bucket table.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gridRPC",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gridRPC v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(call.PingCmd)
	RootCmd.AddCommand(call.NodesCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
