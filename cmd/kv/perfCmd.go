package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/gridRPC/cmd/util"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the kv servant of a grid",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// perfCase is one benchmark: prepare runs before the timer, op once per iteration
type perfCase struct {
	name    string
	prepare func(keys []string)
	op      func(key string, i int64) error
}

func perfCases() []perfCase {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	fill := func(keys []string) {
		for _, k := range keys {
			if err := kvClient.Set(k, value, 0); err != nil {
				log.Printf("(prepare) - error setting key: %v\n", err)
			}
		}
	}

	return []perfCase{
		{name: "set", op: func(k string, _ int64) error { return kvClient.Set(k, value, 0) }},
		{name: "set-large", op: func(k string, _ int64) error { return kvClient.Set(k, largeValue, 0) }},
		{name: "get", prepare: fill, op: func(k string, _ int64) error {
			_, _, err := kvClient.Get(k)
			return err
		}},
		{name: "has", prepare: fill, op: func(k string, _ int64) error {
			_, err := kvClient.Has(k)
			return err
		}},
		{name: "has-not", op: func(k string, _ int64) error {
			_, err := kvClient.Has(k + "-missing")
			return err
		}},
		{name: "delete", prepare: fill, op: func(k string, _ int64) error {
			_, err := kvClient.Delete(k)
			return err
		}},
		{name: "mixed", prepare: fill, op: func(k string, i int64) error {
			// 3 reads per write
			if i%4 == 0 {
				return kvClient.Set(k, value, 0)
			}
			_, _, err := kvClient.Get(k)
			return err
		}},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for gridRPC kv servants")

	config := util.GetClientConfig()
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, pc := range perfCases() {
		if shouldSkip(pc.name) {
			results[pc.name] = testing.BenchmarkResult{}
			printResult(pc.name, results[pc.name])
			continue
		}
		result := testing.Benchmark(func(b *testing.B) {
			keys := getKeys(pc.name)
			b.Cleanup(func() {
				for _, k := range keys {
					if _, err := kvClient.Delete(k); err != nil {
						log.Printf("(%s) - error deleting key: %v\n", pc.name, err)
					}
				}
			})
			if pc.prepare != nil {
				pc.prepare(keys)
			}

			var counter atomic.Int64
			b.SetParallelism(perfNumThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					i := counter.Add(1)
					if err := pc.op(keys[i%int64(len(keys))], i); err != nil {
						log.Printf("(%s) - error: %v\n", pc.name, err)
					}
				}
			})
		})
		results[pc.name] = result
		printResult(pc.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of a benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return keys
}

func opsPerSec(result testing.BenchmarkResult) (nsPerOp, ops float64) {
	nsPerOp = math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	return nsPerOp, 1.0 / (nsPerOp / 1e9)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}
	nsPerOp, ops := opsPerSec(result)
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), ops)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Grid", "ClusterMode", "PoolSize", "RetryTimes", "AckTimeout",
		"Serializer", "Transport", "Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp, ops float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp, ops = opsPerSec(result)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", ops),
			skipped,
			config.Grid,
			config.ClusterMode,
			strconv.Itoa(config.Communicator.ConnectionPoolSize),
			strconv.Itoa(config.Communicator.RetryTimes),
			config.Communicator.RequestWaitingAckTimeout.String(),
			config.Serializer,
			config.Transport.Kind,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	return nil
}
