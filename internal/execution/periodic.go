package execution

import (
	"fmt"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"
)

// Schedules holds standard five-field cron expressions or @every
// descriptors for the periodic jobs.
type Schedules struct {
	Overdue     string
	AutoApprove string
	Reconcile   string
}

// PeriodicJobs builds the two sweeps and the charge reconciliation. Each
// also runs once when the client starts.
func PeriodicJobs(s Schedules) ([]*river.PeriodicJob, error) {
	specs := []struct {
		name string
		spec string
		args river.JobArgs
	}{
		{"overdue sweep", s.Overdue, SweepOverdueArgs{}},
		{"auto-approve sweep", s.AutoApprove, SweepAutoApproveArgs{}},
		{"charge reconciliation", s.Reconcile, ReconcileChargesArgs{}},
	}
	jobs := make([]*river.PeriodicJob, 0, len(specs))
	for _, sp := range specs {
		sched, err := cron.ParseStandard(sp.spec)
		if err != nil {
			return nil, fmt.Errorf("%s schedule %q: %w", sp.name, sp.spec, err)
		}
		args := sp.args
		jobs = append(jobs, river.NewPeriodicJob(sched, func() (river.JobArgs, *river.InsertOpts) {
			return args, nil
		}, &river.PeriodicJobOpts{RunOnStart: true}))
	}
	return jobs, nil
}
