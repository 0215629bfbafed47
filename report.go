package memocache

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// TableStat is the utilization of one registered collection.
type TableStat struct {
	Name    string
	Kind    string
	Entries int
	Bytes   int64
}

// Report is a point-in-time utilization snapshot of a registry, largest
// tables first.
type Report struct {
	Tables  []TableStat
	Entries int
	Bytes   int64
}

// Report collects the live entry count and estimated size of every
// registered collection.
func (r *Registry) Report() Report {
	entries := r.Tables()
	rep := Report{Tables: make([]TableStat, 0, len(entries))}
	for _, e := range entries {
		st := TableStat{Name: e.Name, Kind: e.Kind, Entries: e.Table.Len(), Bytes: e.Bytes()}
		rep.Entries += st.Entries
		rep.Bytes += st.Bytes
		rep.Tables = append(rep.Tables, st)
	}
	sort.SliceStable(rep.Tables, func(i, j int) bool {
		a, b := rep.Tables[i], rep.Tables[j]
		if a.Bytes != b.Bytes {
			return a.Bytes > b.Bytes
		}
		return a.Entries > b.Entries
	})
	return rep
}

// NonEmpty returns the stats of the tables holding at least one entry.
func (r Report) NonEmpty() []TableStat {
	var out []TableStat
	for _, t := range r.Tables {
		if t.Entries > 0 {
			out = append(out, t)
		}
	}
	return out
}

// String renders the report as an aligned, human-readable table.
func (r Report) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "TABLE\tKIND\tENTRIES\tSIZE\t")
	for _, t := range r.Tables {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", t.Name, t.Kind, humanize.Comma(int64(t.Entries)), humanize.Bytes(uint64(max(t.Bytes, 0))))
	}
	fmt.Fprintf(w, "total (%d tables)\t\t%s\t%s\t\n", len(r.Tables), humanize.Comma(int64(r.Entries)), humanize.Bytes(uint64(max(r.Bytes, 0))))
	_ = w.Flush()
	return b.String()
}
