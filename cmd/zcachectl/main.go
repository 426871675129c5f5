// Command zcachectl drives a synthetic store/load/invalidate workload
// against an in-memory host stub and prints the resulting observability
// counters, exercising the library the way the teacher's cmd/pebble tool
// exercises the storage engine.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"github.com/jsenning/zcache"
)

var (
	numOffsets          int
	iterations          int
	compressiblePercent int
	poolPercent         int
	compressionRatio    int
	seed                int64
)

var rootCmd = &cobra.Command{
	Use:   "zcachectl [command] (flags)",
	Short: "zcache workload driver / introspection tool",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a synthetic store/load workload and report cache statistics",
	RunE:  runWorkload,
}

func main() {
	log.SetFlags(0)

	runCmd.Flags().IntVar(&numOffsets, "offsets", 256, "number of distinct swap offsets to cycle through")
	runCmd.Flags().IntVar(&iterations, "iterations", 4096, "number of store/load operations to perform")
	runCmd.Flags().IntVar(&compressiblePercent, "compressible-percent", 80,
		"percent of stored pages that are highly compressible (zero-filled) rather than random")
	runCmd.Flags().IntVar(&poolPercent, "pool-percent", 50, "max_pool_percent tunable")
	runCmd.Flags().IntVar(&compressionRatio, "compression-ratio", 80, "max_compression_ratio tunable")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "workload random seed")

	rootCmd.AddCommand(runCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const pageSize = 4096

func runWorkload(cmd *cobra.Command, args []string) error {
	rng := rand.New(rand.NewSource(uint64(seed)))

	host := newMemHost(pageSize)
	c := zcache.New(host, zcache.Options{
		MaxPoolPercent:      poolPercent,
		MaxCompressionRatio: compressionRatio,
		WritebackEnabled:    true,
	})
	const swapType = uint32(0)
	c.Init(swapType)

	occupancy := make([]float64, 0, iterations)
	for i := 0; i < iterations; i++ {
		offset := uint64(rng.Intn(numOffsets))
		page := make([]byte, pageSize)
		if rng.Intn(100) >= compressiblePercent {
			rng.Read(page)
		}

		switch rng.Intn(10) {
		case 0:
			c.InvalidatePage(swapType, offset)
		default:
			dst := make([]byte, pageSize)
			if !c.Load(swapType, offset, dst) {
				_ = c.Store(swapType, offset, page)
			}
		}

		occupancy = append(occupancy, float64(c.Stats().PoolPages))
	}

	printStats(c, host)
	printOccupancyGraph(occupancy)
	return nil
}

func printStats(c *zcache.Cache, host *memHost) {
	stats := c.Stats()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"pool pages", fmt.Sprintf("%d", stats.PoolPages)})
	table.Append([]string{"stored pages", fmt.Sprintf("%d", stats.StoredPages)})
	table.Append([]string{"outstanding writebacks", fmt.Sprintf("%d", stats.Outstanding)})
	table.Append([]string{"host writes submitted", fmt.Sprintf("%d", host.Writes())})
	table.Append([]string{"p50 compressed size", fmt.Sprintf("%d", c.Metrics.CompressedSizePercentile(50))})
	table.Append([]string{"p99 compressed size", fmt.Sprintf("%d", c.Metrics.CompressedSizePercentile(99))})
	table.Render()
}

func printOccupancyGraph(samples []float64) {
	if len(samples) == 0 {
		return
	}
	fmt.Println("pool occupancy over the run:")
	fmt.Println(asciigraph.Plot(samples, asciigraph.Height(10), asciigraph.Width(80)))
}
