package queue

import (
	"go.opentelemetry.io/otel/metric"
)

// instruments are the engine's transition counters.
type instruments struct {
	enqueued  metric.Int64Counter
	deduped   metric.Int64Counter
	claimed   metric.Int64Counter
	completed metric.Int64Counter
	requeued  metric.Int64Counter
	failed    metric.Int64Counter
	reclaimed metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var ins instruments
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&ins.enqueued, "jobqueue.jobs.enqueued", "Jobs inserted by enqueue"},
		{&ins.deduped, "jobqueue.jobs.deduplicated", "Enqueue calls answered by an existing live job"},
		{&ins.claimed, "jobqueue.jobs.claimed", "Successful claims"},
		{&ins.completed, "jobqueue.jobs.completed", "Jobs completed"},
		{&ins.requeued, "jobqueue.jobs.requeued", "Failures returned to pending with attempts left"},
		{&ins.failed, "jobqueue.jobs.failed", "Failures that exhausted the attempt budget"},
		{&ins.reclaimed, "jobqueue.jobs.reclaimed", "Stale claims returned to pending"},
	}

	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return &ins, nil
}
