package scenario

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
)

// runReporter is the tally backend of a scenario run. It logs every metric
// at debug level and keeps counter totals, summed over tags, for the Result.
type runReporter struct {
	mu       sync.Mutex
	counters map[string]int64
}

var _ tally.StatsReporter = (*runReporter)(nil)

func newRunReporter() *runReporter {
	return &runReporter{counters: make(map[string]int64)}
}

// Counters returns a copy of the totals reported so far.
func (r *runReporter) Counters() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

func (r *runReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.mu.Lock()
	r.counters[name] += value
	r.mu.Unlock()
	logrus.WithFields(fields(tags)).Debugf("counter %s += %d", name, value)
}

func (r *runReporter) ReportGauge(name string, tags map[string]string, value float64) {
	logrus.WithFields(fields(tags)).Debugf("gauge %s = %g", name, value)
}

func (r *runReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	logrus.WithFields(fields(tags)).Debugf("timer %s = %s", name, interval)
}

func (r *runReporter) ReportHistogramValueSamples(name string, tags map[string]string, _ tally.Buckets, lower, upper float64, samples int64) {
	logrus.WithFields(fields(tags)).Debugf("histogram %s [%g, %g) += %d", name, lower, upper, samples)
}

func (r *runReporter) ReportHistogramDurationSamples(name string, tags map[string]string, _ tally.Buckets, lower, upper time.Duration, samples int64) {
	logrus.WithFields(fields(tags)).Debugf("histogram %s [%s, %s) += %d", name, lower, upper, samples)
}

func (r *runReporter) Capabilities() tally.Capabilities { return r }

func (r *runReporter) Reporting() bool { return true }

func (r *runReporter) Tagging() bool { return true }

func (r *runReporter) Flush() {}

func fields(tags map[string]string) logrus.Fields {
	f := make(logrus.Fields, len(tags))
	for k, v := range tags {
		f[k] = v
	}
	return f
}
