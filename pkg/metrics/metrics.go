// Package metrics exports the outcome of a run in the Prometheus text
// format, for the node exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psaab/tcusers/pkg/addr"
	"github.com/psaab/tcusers/pkg/classify"
	"github.com/psaab/tcusers/pkg/entry"
	"github.com/psaab/tcusers/pkg/reconcile"
)

// Run is the outcome of one invocation.
type Run struct {
	Entries      [addr.NumTypes]int
	FlowsPerUser uint16
	Classified   classify.Stats
	Sync         reconcile.Result
	DryRun       bool
	Time         time.Time
}

// CountEntries sets the per-type entry counts from s.
func (r *Run) CountEntries(s *entry.Store) {
	r.Entries = [addr.NumTypes]int{}
	for _, e := range s.Entries() {
		r.Entries[e.Addr.Type()]++
	}
}

// runCollector implements prometheus.Collector over a finished Run.
type runCollector struct {
	run *Run

	syncActionsTotal *prometheus.Desc
	entries          *prometheus.Desc
	flowsPerUser     *prometheus.Desc
	classifiedTotal  *prometheus.Desc
	dryRun           *prometheus.Desc
	lastRun          *prometheus.Desc
}

func newCollector(run *Run) *runCollector {
	return &runCollector{
		run: run,

		syncActionsTotal: prometheus.NewDesc(
			"tc_users_sync_actions_total",
			"Map entries added, updated, deleted or left unchanged by the last run.",
			[]string{"action"}, nil,
		),
		entries: prometheus.NewDesc(
			"tc_users_entries",
			"Input entries per address type.",
			[]string{"type"}, nil,
		),
		flowsPerUser: prometheus.NewDesc(
			"tc_users_flows_per_user",
			"Flows per user pushed to the classifier.",
			nil, nil,
		),
		classifiedTotal: prometheus.NewDesc(
			"tc_users_classified_total",
			"Entries classified per method.",
			[]string{"method"}, nil,
		),
		dryRun: prometheus.NewDesc(
			"tc_users_dry_run",
			"1 if the last run did not modify the maps.",
			nil, nil,
		),
		lastRun: prometheus.NewDesc(
			"tc_users_last_run_timestamp_seconds",
			"Unix time of the last successful run.",
			nil, nil,
		),
	}
}

func (c *runCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.syncActionsTotal
	ch <- c.entries
	ch <- c.flowsPerUser
	ch <- c.classifiedTotal
	ch <- c.dryRun
	ch <- c.lastRun
}

func (c *runCollector) Collect(ch chan<- prometheus.Metric) {
	r := c.run

	for _, act := range reconcile.Actions {
		ch <- prometheus.MustNewConstMetric(c.syncActionsTotal, prometheus.CounterValue,
			float64(r.Sync[act]), act.String())
	}
	for _, t := range addr.Types {
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue,
			float64(r.Entries[t]), t.String())
	}
	for _, m := range []classify.Method{classify.Direct, classify.Shared, classify.Indirect} {
		ch <- prometheus.MustNewConstMetric(c.classifiedTotal, prometheus.CounterValue,
			float64(r.Classified[m]), m.String())
	}
	ch <- prometheus.MustNewConstMetric(c.flowsPerUser, prometheus.GaugeValue,
		float64(r.FlowsPerUser))

	dry := 0.0
	if r.DryRun {
		dry = 1
	}
	ch <- prometheus.MustNewConstMetric(c.dryRun, prometheus.GaugeValue, dry)
	ch <- prometheus.MustNewConstMetric(c.lastRun, prometheus.GaugeValue,
		float64(r.Time.Unix()))
}

// Registry returns a registry exposing run.
func Registry(run *Run) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newCollector(run))
	return reg
}

// WriteTextfile atomically writes run to path in the text exposition
// format.
func WriteTextfile(path string, run *Run) error {
	if err := prometheus.WriteToTextfile(path, Registry(run)); err != nil {
		return fmt.Errorf("write metrics file '%s': %w", path, err)
	}
	return nil
}
