// Command vectordb-cli is a standalone embedder of the vectordb engine:
// it opens a data directory directly, in-process, and exposes the
// engine's operations as subcommands. There is no server to dial —
// the engine is a library, and this is its thinnest possible caller.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/therealutkarshpriyadarshi/vectordb/pkg/config"
	"github.com/therealutkarshpriyadarshi/vectordb/pkg/engine"
	"github.com/therealutkarshpriyadarshi/vectordb/pkg/observability"
)

const version = "1.0.0"

var (
	dataDir    string
	dimensions int
	metric     string
	access     *observability.AccessLogger
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	flag.StringVar(&dataDir, "data", "./data", "data directory")
	flag.IntVar(&dimensions, "dimensions", 0, "vector dimensions (required on first use of a data dir)")
	flag.StringVar(&metric, "metric", "euclidean", "distance metric: euclidean, manhattan, cosine, dot, angular")

	access = observability.NewAccessLogger(observability.NewDefaultLogger())

	command := os.Args[1]
	switch command {
	case "insert":
		handleInsert(os.Args[2:])
	case "get":
		handleGet(os.Args[2:])
	case "search":
		handleSearch(os.Args[2:])
	case "delete":
		handleDelete(os.Args[2:])
	case "train":
		handleTrain(os.Args[2:])
	case "compact":
		handleCompact(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "version":
		fmt.Printf("vectordb-cli version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

func openEngine(fs *flag.FlagSet) *engine.Engine {
	fs.StringVar(&dataDir, "data", dataDir, "data directory")
	fs.IntVar(&dimensions, "dimensions", dimensions, "vector dimensions")
	fs.StringVar(&metric, "metric", metric, "distance metric")

	cfg := config.Default()
	cfg.Store.DataDir = dataDir
	if dimensions > 0 {
		cfg.Store.Dimensions = dimensions
	}
	cfg.Store.Metric = metric

	e, err := engine.Open(cfg)
	if err != nil {
		fmt.Printf("Error opening engine at %s: %v\n", dataDir, err)
		os.Exit(1)
	}
	return e
}

func parseVector(s string) []float32 {
	var vals []float64
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		fmt.Printf("Error parsing vector: %v\n", err)
		os.Exit(1)
	}
	v := make([]float32, len(vals))
	for i, x := range vals {
		v[i] = float32(x)
	}
	return v
}

func handleInsert(args []string) {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	var (
		id        = fs.String("id", "", "vector id (required)")
		vectorStr = fs.String("vector", "", "vector as JSON array (required)")
	)
	fs.Parse(args)
	requireFlags(fs, map[string]string{"id": *id, "vector": *vectorStr})

	vector := parseVector(*vectorStr)
	e := openEngine(fs)
	defer e.Close()

	err := withAccessLog("insert", func() error {
		return e.Store([]byte(*id), vector)
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("inserted %s\n", *id)
}

func handleGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	id := fs.String("id", "", "vector id (required)")
	fs.Parse(args)
	requireFlags(fs, map[string]string{"id": *id})

	e := openEngine(fs)
	defer e.Close()

	var vector []float32
	err := withAccessLog("get", func() error {
		v, err := e.Get([]byte(*id))
		vector = v
		return err
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printJSON(vector)
}

func handleSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		queryStr = fs.String("query", "", "query vector as JSON array (required)")
		k        = fs.Int("k", 10, "number of results to return")
		ef       = fs.Int("ef", 0, "efSearch override (0 uses the configured default)")
	)
	fs.Parse(args)
	requireFlags(fs, map[string]string{"query": *queryStr})

	query := parseVector(*queryStr)
	e := openEngine(fs)
	defer e.Close()

	start := time.Now()
	var hits int
	err := withAccessLog("search", func() error {
		result, err := e.Search(query, *k, *ef)
		if err != nil {
			return err
		}
		hits = len(result.Results)
		for _, r := range result.Results {
			fmt.Printf("%s\t%f\n", r.ID, r.Distance)
		}
		return nil
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("# %d results in %s\n", hits, time.Since(start))
}

func handleDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "vector id (required)")
	fs.Parse(args)
	requireFlags(fs, map[string]string{"id": *id})

	e := openEngine(fs)
	defer e.Close()

	err := withAccessLog("delete", func() error {
		return e.Delete([]byte(*id))
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %s\n", *id)
}

func handleTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var (
		samplesFile   = fs.String("samples", "", "path to a JSON array of sample vectors (required)")
		numSubvectors = fs.Int("subvectors", 8, "number of PQ subvectors")
		bitsPerCode   = fs.Int("bits", 8, "bits per PQ code")
	)
	fs.Parse(args)
	requireFlags(fs, map[string]string{"samples": *samplesFile})

	raw, err := os.ReadFile(*samplesFile)
	if err != nil {
		fmt.Printf("Error reading samples file: %v\n", err)
		os.Exit(1)
	}
	var samples [][]float32
	if err := json.Unmarshal(raw, &samples); err != nil {
		fmt.Printf("Error parsing samples: %v\n", err)
		os.Exit(1)
	}

	e := openEngine(fs)
	defer e.Close()

	err = withAccessLog("train", func() error {
		return e.TrainCompression(samples, *numSubvectors, *bitsPerCode)
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("compression trained")
}

func handleCompact(args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	fs.Parse(args)

	e := openEngine(fs)
	defer e.Close()

	var ran bool
	err := withAccessLog("compact", func() error {
		var err error
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		ran, err = e.MaybeCompact(ctx)
		return err
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if ran {
		fmt.Println("compaction ran")
	} else {
		fmt.Println("no compaction needed")
	}
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	e := openEngine(fs)
	defer e.Close()

	printJSON(e.Stats())
}

// withAccessLog runs fn and records it through the access logger, the
// CLI's nearest equivalent to a request/response cycle.
func withAccessLog(command string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	access.LogAccess(command, status, time.Since(start), nil)
	return err
}

func requireFlags(fs *flag.FlagSet, required map[string]string) {
	for name, value := range required {
		if value == "" {
			fmt.Printf("Error: -%s is required\n", name)
			fs.Usage()
			os.Exit(1)
		}
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func showUsage() {
	fmt.Printf(`vectordb-cli %s

Usage: vectordb-cli <command> [flags]

Commands:
  insert   -id ID -vector JSON [-data DIR -dimensions N -metric M]
  get      -id ID [-data DIR]
  search   -query JSON [-k N -ef N] [-data DIR]
  delete   -id ID [-data DIR]
  train    -samples FILE [-subvectors N -bits N] [-data DIR]
  compact  [-data DIR]
  stats    [-data DIR]
  version
  help

Every command opens -data directly as an embedded engine instance;
there is no server process to connect to.
`, version)
}
