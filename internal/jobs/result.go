package jobs

// Result is what a job run reports back to the [Runner]. The only
// implementations are [Success], [Retry] and [Failure].
type Result interface {
	isResult()
}

// Success ends a one-shot job and resets the backoff of a periodic one.
type Success struct{}

// Retry asks the runner to run the job again after the next backoff delay.
type Retry struct {
	Err error
}

// Failure ends a one-shot job without retrying. A periodic job resumes at its
// next interval.
type Failure struct {
	Err error
}

func (Success) isResult() {}
func (Retry) isResult()   {}
func (Failure) isResult() {}

// outcome returns the metric/log label for res.
func outcome(res Result) string {
	switch res.(type) {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}
