package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `goos: linux
goarch: amd64
pkg: github.com/joshuapare/iovacache/iova/rcache
BenchmarkAllocFree_Domain-8          	 5000000	       240.0 ns/op	      48 B/op	       1 allocs/op
BenchmarkAllocFree_Cache-8           	50000000	        24.0 ns/op	       0 B/op	       0 allocs/op
BenchmarkAllocFree_CacheParallel-8   	90000000	        12.0 ns/op	       0 B/op	       0 allocs/op
{"Action":"output","Output":"BenchmarkAllocFree_CacheBatched-8   \t    3000\t   1200000 ns/op\t     512 B/op\t       4 allocs/op\n"}
PASS
`

func TestParseBenchmarks(t *testing.T) {
	results, err := parseBenchmarks(strings.NewReader(sampleOutput))
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "AllocFree", results[0].Operation)
	assert.Equal(t, "Domain", results[0].Variant)
	assert.Equal(t, 8, results[0].Procs)
	assert.Equal(t, 5000000, results[0].Iterations)
	assert.InDelta(t, 240.0, results[0].NsPerOp, 0.001)
	assert.EqualValues(t, 48, results[0].BytesPerOp)
	assert.EqualValues(t, 1, results[0].AllocsPerOp)

	// Parsed from a go test -json event.
	assert.Equal(t, "CacheBatched", results[3].Variant)
	assert.EqualValues(t, 4, results[3].AllocsPerOp)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		variant string
		procs   int
	}{
		{"BenchmarkAllocFree_Cache-8", "AllocFree", "Cache", 8},
		{"BenchmarkAllocFree_Domain", "AllocFree", "Domain", 1},
		{"BenchmarkFind-4", "Find", "", 4},
		{"BenchmarkAllocFree_Cache/size=4-16", "AllocFree", "Cache/size=4", 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, variant, procs := splitName(tt.name)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.variant, variant)
			assert.Equal(t, tt.procs, procs)
		})
	}
}

func TestGenerateMarkdownReport(t *testing.T) {
	results, err := parseBenchmarks(strings.NewReader(sampleOutput))
	require.NoError(t, err)

	report := generateMarkdownReport(results)
	assert.Contains(t, report, "## AllocFree")
	assert.Contains(t, report, "| Cache | 8 | 24.0ns | 0 | 0 | 10.00x |")
	assert.Contains(t, report, "| Domain | 8 | 240.0ns | 48 | 1 | - |")
	assert.Contains(t, report, "| CacheBatched | 8 | 1.20ms |")
}

func TestGenerateMarkdownReport_Empty(t *testing.T) {
	assert.Contains(t, generateMarkdownReport(nil), "No benchmark results found.")
}
