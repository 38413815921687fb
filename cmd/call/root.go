package call

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ValentinKolb/gridRPC/cmd/util"
	"github.com/ValentinKolb/gridRPC/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const startTimeout = 10 * time.Second

var (
	// CallCmd sends one call to a node of a grid
	CallCmd = &cobra.Command{
		Use:   "call [servant] [method] [payload]",
		Short: "Call a servant method on a node of a grid",
		Long: `Call a servant method on a node of a grid. The node is selected with --route:
random, mod (--key as integer), hash (--key as integer), hashkey (--key as string),
master, slave or instance (--key as instance node id).`,
		Args:    cobra.RangeArgs(2, 3),
		PreRunE: bind,
		RunE:    runCall,
	}

	// PingCmd pings a single endpoint
	PingCmd = &cobra.Command{
		Use:     "ping [endpoint]",
		Short:   "Ping a server endpoint",
		Args:    cobra.ExactArgs(1),
		PreRunE: bind,
		RunE:    runPing,
	}

	// NodesCmd lists the members of a grid
	NodesCmd = &cobra.Command{
		Use:     "nodes",
		Short:   "List the nodes of a grid",
		PreRunE: bind,
		RunE:    runNodes,
	}
)

func init() {
	util.SetupClientFlags(CallCmd)
	util.SetupClientFlags(NodesCmd)
	util.SetupClientFlags(PingCmd)

	key := "route"
	CallCmd.Flags().String(key, "random", util.WrapString("Node selection (random, mod, hash, hashkey, master, slave, instance)"))
	key = "key"
	CallCmd.Flags().String(key, "", util.WrapString("Routing key of the selection"))
	key = "fire-and-forget"
	CallCmd.Flags().Bool(key, false, util.WrapString("Send without waiting for the send confirmation and the response"))

	key = "count"
	PingCmd.Flags().Int(key, 3, util.WrapString("Number of pings"))
}

func bind(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func runCall(_ *cobra.Command, args []string) error {
	inv, closeFn, err := util.NewInvoker(context.Background(), util.GetClientConfig(), startTimeout)
	if err != nil {
		return err
	}
	defer closeFn()

	proxy, err := selectProxy(inv, args[0], viper.GetString("route"), viper.GetString("key"))
	if err != nil {
		return err
	}

	var payload []byte
	if len(args) == 3 {
		payload = []byte(args[2])
	}
	mode := client.ModeDefault
	if viper.GetBool("fire-and-forget") {
		mode = 0
	}

	start := time.Now()
	resp, err := proxy.Call(args[1], payload, mode)
	if err != nil {
		return err
	}
	if resp == nil {
		fmt.Printf("sent to %s (%s)\n", proxy.PhysicalName(), mode)
		return nil
	}
	fmt.Printf("%s tid=%d took=%s\n%s\n", proxy.PhysicalName(), resp.Tid, time.Since(start), resp.Payload)
	return nil
}

func selectProxy(inv *client.ClusterInvoker, servant, route, key string) (*client.ObjectProxy, error) {
	intKey := func() (int64, error) {
		v, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("route %s needs an integer --key: %w", route, err)
		}
		return v, nil
	}

	switch route {
	case "random":
		return inv.ByRandom(servant)
	case "mod":
		v, err := intKey()
		if err != nil {
			return nil, err
		}
		return inv.ByMod(servant, v)
	case "hash":
		v, err := intKey()
		if err != nil {
			return nil, err
		}
		return inv.ByHash(servant, v)
	case "hashkey":
		return inv.ByHashKey(servant, key)
	case "master":
		return inv.Master(servant)
	case "slave":
		return inv.Slave(servant)
	case "instance":
		return inv.ByInstanceID(servant, key)
	default:
		return nil, fmt.Errorf("invalid route %s", route)
	}
}

func runPing(_ *cobra.Command, args []string) error {
	config := util.GetClientConfig()
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	poolFactory, err := util.GetPoolFactory(config.Transport)
	if err != nil {
		return err
	}

	comm := client.NewCommunicator("ping", config.Communicator, s, poolFactory)
	comm.Start()
	defer comm.Close()

	for i := 0; i < viper.GetInt("count"); i++ {
		rtt, err := comm.Ping(args[0], config.Communicator.RequestWaitingAckTimeout)
		if err != nil {
			fmt.Printf("ping %s: %v\n", args[0], err)
			continue
		}
		fmt.Printf("pong from %s: time=%s\n", args[0], rtt)
	}
	return nil
}

func runNodes(_ *cobra.Command, _ []string) error {
	config := util.GetClientConfig()
	inv, closeFn, err := util.NewInvoker(context.Background(), config, startTimeout)
	if err != nil {
		return err
	}
	defer closeFn()

	if viper.GetString("log-level") == "debug" {
		bs, _ := json.MarshalIndent(inv.Config(), "", "  ")
		fmt.Printf("communicator config: %s\n", bs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "INSTANCE\tNODE\tENDPOINT\n")
	for _, n := range inv.Nodes() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", n.InstanceNodeID, n.NodeName, n.Endpoint())
	}
	fmt.Fprintf(w, "\n%d nodes in %s (%s)\n", len(inv.Nodes()), inv.Grid(), inv.Mode())
	return w.Flush()
}

