// Command ember is the demo entry point: it loads a sparse-vector corpus,
// builds the indexes, prints corpus and index statistics, and runs two
// sample queries - one over ordinary dimensions and one through the
// hottest dimension in the index, where posting-list pruning earns its
// keep.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/ember"
)

var (
	dataPath string
	topK     int
	verbose  bool
)

func main() {
	root := &cobra.Command{
		Use:   "ember",
		Short: "Top-k similarity search over sparse vectors",
		Long: "ember builds an inverted index over a corpus of sparse vectors and\n" +
			"answers top-k dot-product queries through a pruned posting-list merge.",
		RunE:          runDemo,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().StringVar(&dataPath, "data", "./data/sparse-vectors.jsonl",
		"record-per-line JSON corpus to load")
	root.Flags().IntVar(&topK, "k", 10, "number of results per query")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	storage, err := ember.LoadRecords(dataPath)
	if err != nil {
		return err
	}

	printDataStats(storage.DataStats())
	indexStats := storage.IndexStats()
	printIndexStats(indexStats)

	storage.BuildInvertedIndex()

	// An easy query: a few spread-out dimensions, short posting lists.
	easy, err := ember.NewSparseVector(
		[]ember.DimID{0, 1000, 2000, 3000},
		[]float32{1.0, 0.2, 0.9, 0.5},
	)
	if err != nil {
		return err
	}
	runQuery(storage, "easy", easy)

	// A hot query: include the dimension with the longest posting list,
	// so the merge has to prune its way through it.
	hot, err := ember.NewSparseVector(
		[]ember.DimID{indexStats.MaxPostingDim},
		[]float32{1.0},
	)
	if err != nil {
		return err
	}
	runQuery(storage, "hot-dimension", hot)

	return nil
}

func runQuery(storage *ember.Storage, name string, query ember.SparseVector) {
	start := time.Now()
	results := storage.QueryInvertedIndex(topK, query)
	elapsed := time.Since(start)

	fmt.Printf("\nTop %d for %s query (dims %v) in %s:\n", topK, name, query.Indices, elapsed)
	for _, r := range results {
		fmt.Printf("  score %10.4f  record %d\n", r.Score, r.ID)
	}
}

func printDataStats(s ember.DataStats) {
	fmt.Printf("Data: %d sparse vectors\n", s.VectorCount)
	fmt.Printf("  dimension ids:    %d .. %d\n", s.MinDim, s.MaxDim)
	fmt.Printf("  weights:          %g .. %g\n", s.MinWeight, s.MaxWeight)
	fmt.Printf("  populated length: %d .. %d (avg %.1f)\n", s.MinLen, s.MaxLen, s.AvgLen)
}

func printIndexStats(s ember.IndexStats) {
	fmt.Printf("Index: %d dimensions\n", s.DimCount)
	fmt.Printf("  longest posting list:  dim %d with %d records\n", s.MaxPostingDim, s.MaxPostingLen)
	fmt.Printf("  shortest posting list: dim %d with %d records\n", s.MinPostingDim, s.MinPostingLen)
}
