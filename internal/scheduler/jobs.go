package scheduler

// FuncJob adapts a function to the Job interface
type FuncJob struct {
	name string
	fn   func() error
}

// NewFuncJob creates a named job around fn
func NewFuncJob(name string, fn func() error) *FuncJob {
	return &FuncJob{name: name, fn: fn}
}

// Name returns the job name
func (j *FuncJob) Name() string {
	return j.name
}

// Run executes the job
func (j *FuncJob) Run() error {
	return j.fn()
}
