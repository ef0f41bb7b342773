package main

import (
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/iovacache/iova/rcache"
)

// printer groups digits in counters ("12,345").
var printer = message.NewPrinter(language.English)

// printStats writes the per-class table and the fast/slow path totals.
func printStats(st rcache.Stats) {
	if quiet {
		return
	}
	writeStats(os.Stdout, st)
}

func writeStats(out io.Writer, st rcache.Stats) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	printer.Fprintf(tw, "class\tpages\thits\tmisses\tinserts\tfailed\tdepot in\tdepot out\tevicted\tdrained\tcached\t\n")
	for _, cs := range st.Classes {
		printer.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			cs.Order, cs.Size, cs.Hits, cs.Misses, cs.Inserts, cs.InsertFailures,
			cs.DepotPushes, cs.DepotPops, cs.DepotEvictions, cs.Drained, cs.Cached)
	}
	tw.Flush()

	printer.Fprintf(out, "\nallocs: %d fast, %d slow, %d failed\n", st.FastAllocs, st.SlowAllocs, st.AllocFailures)
	printer.Fprintf(out, "frees:  %d fast, %d slow\n", st.FastFrees, st.SlowFrees)
	printer.Fprintf(out, "flushes: %d, live magazines: %d\n", st.Flushes, st.LiveMagazines)
}
