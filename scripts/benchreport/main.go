// Command benchreport turns `go test -bench` output for the range cache into
// a markdown table comparing each variant against the exact-fit allocator.
//
//	go test -bench . -benchmem ./iova/rcache | go run ./scripts/benchreport
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"
)

// baseline is the variant every other variant is compared with.
const baseline = "Domain"

// BenchmarkResult is one parsed benchmark line.
type BenchmarkResult struct {
	Name        string
	Operation   string
	Variant     string
	Procs       int
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

var (
	inputFile  = flag.String("input", "", "Input file with benchmark output (stdin if not specified)")
	outputFile = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet      = flag.Bool("quiet", false, "Suppress progress output")
)

// BenchmarkAllocFree_CacheParallel-8    10000    12.4 ns/op    0 B/op    0 allocs/op
var benchmarkRegex = regexp.MustCompile(
	`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+(\d+)\s+B/op)?(?:\s+(\d+)\s+allocs/op)?`,
)

// testEvent is the subset of `go test -json` output we read.
type testEvent struct {
	Output string `json:"Output"`
}

func main() {
	flag.Parse()

	in := io.Reader(os.Stdin)
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	results, err := parseBenchmarks(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(results))
	}

	report := generateMarkdownReport(results)

	if *outputFile == "" {
		fmt.Fprint(os.Stdout, report)
		return
	}
	if err := os.WriteFile(*outputFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
		os.Exit(1)
	}
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
	}
}

func parseBenchmarks(r io.Reader) ([]BenchmarkResult, error) {
	var results []BenchmarkResult

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		// Lines from `go test -json` carry the benchmark text in Output.
		if strings.HasPrefix(line, "{") {
			var ev testEvent
			if err := sonnet.Unmarshal([]byte(line), &ev); err == nil {
				line = ev.Output
			}
		}

		m := benchmarkRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		res := BenchmarkResult{Name: m[1], Procs: 1}
		res.Iterations, _ = strconv.Atoi(m[2])
		res.NsPerOp, _ = strconv.ParseFloat(m[3], 64)
		if m[4] != "" {
			res.BytesPerOp, _ = strconv.ParseInt(m[4], 10, 64)
		}
		if m[5] != "" {
			res.AllocsPerOp, _ = strconv.ParseInt(m[5], 10, 64)
		}
		res.Operation, res.Variant, res.Procs = splitName(res.Name)
		results = append(results, res)
	}
	return results, scanner.Err()
}

// splitName splits Benchmark<Operation>_<Variant>-<procs>. Sub-benchmark
// paths stay part of the variant.
func splitName(name string) (op, variant string, procs int) {
	name = strings.TrimPrefix(name, "Benchmark")
	procs = 1
	if i := strings.LastIndex(name, "-"); i > 0 {
		if n, err := strconv.Atoi(name[i+1:]); err == nil {
			procs = n
			name = name[:i]
		}
	}
	op, variant, ok := strings.Cut(name, "_")
	if !ok {
		return name, "", procs
	}
	return op, variant, procs
}

func generateMarkdownReport(results []BenchmarkResult) string {
	var sb strings.Builder

	sb.WriteString("# Range Cache Benchmarks\n\n")
	if len(results) == 0 {
		sb.WriteString("No benchmark results found.\n")
		return sb.String()
	}

	byOp := make(map[string][]BenchmarkResult)
	var ops []string
	for _, r := range results {
		if _, ok := byOp[r.Operation]; !ok {
			ops = append(ops, r.Operation)
		}
		byOp[r.Operation] = append(byOp[r.Operation], r)
	}
	sort.Strings(ops)

	for _, op := range ops {
		rs := byOp[op]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].NsPerOp < rs[j].NsPerOp })

		var base float64
		for _, r := range rs {
			if r.Variant == baseline {
				base = r.NsPerOp
			}
		}

		fmt.Fprintf(&sb, "## %s\n\n", op)
		sb.WriteString("| Variant | Procs | ns/op | B/op | allocs/op | vs " + baseline + " |\n")
		sb.WriteString("|---------|------:|------:|-----:|----------:|------:|\n")
		for _, r := range rs {
			speedup := "-"
			if base > 0 && r.NsPerOp > 0 && r.Variant != baseline {
				speedup = fmt.Sprintf("%.2fx", base/r.NsPerOp)
			}
			fmt.Fprintf(&sb, "| %s | %d | %s | %d | %d | %s |\n",
				variantLabel(r.Variant), r.Procs, formatNs(r.NsPerOp), r.BytesPerOp, r.AllocsPerOp, speedup)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func variantLabel(v string) string {
	if v == "" {
		return "(default)"
	}
	return v
}

func formatNs(ns float64) string {
	switch {
	case ns >= 1e6:
		return fmt.Sprintf("%.2fms", ns/1e6)
	case ns >= 1e3:
		return fmt.Sprintf("%.2fµs", ns/1e3)
	default:
		return fmt.Sprintf("%.1fns", ns)
	}
}
