package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/iovacache/iova/rcache"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	// Drain concurrently so large outputs cannot fill the pipe.
	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done), fnErr
}

// resetFlags restores every flag global to its default.
func resetFlags() {
	verbose, quiet, jsonOut, logDir = false, false, false, ""

	scenarioCount = 130
	scenarioSize = 1
	scenarioMagSize = rcache.DefaultMagSize
	scenarioDepot = rcache.DefaultMaxGlobalMags

	benchWorkers = 4
	benchOps = 2000
	benchMaxSize = 32
	benchLimit = 0xFFFFF
	benchHold = 16
	benchCores = 0
	benchMagSize = rcache.DefaultMagSize
	benchDepot = rcache.DefaultMaxGlobalMags
	benchMaxMags = 0
	benchFlush = true
	benchSeed = 1
}
