package kv

import (
	"context"
	"time"

	"github.com/ValentinKolb/gridRPC/cmd/util"
	"github.com/ValentinKolb/gridRPC/rpc/client"
	"github.com/spf13/cobra"
)

var (
	kvClient *client.KVClient
	closeFn  func()

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations on the kv servant of a grid",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common client flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects to the grid and creates the kv client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	inv, cl, err := util.NewInvoker(context.Background(), util.GetClientConfig(), 10*time.Second)
	if err != nil {
		return err
	}
	kvClient = client.NewKVClient(inv)
	closeFn = cl
	return nil
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if closeFn != nil {
		closeFn()
	}
	return nil
}
