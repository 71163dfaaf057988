package domain

// Verdict is the judging outcome of a job or of a single case. The wire
// form is exactly the constant text.
type Verdict string

const (
	VerdictWaiting             Verdict = "Waiting"
	VerdictRunning             Verdict = "Running"
	VerdictAccepted            Verdict = "Accepted"
	VerdictCompilationError    Verdict = "Compilation Error"
	VerdictCompilationSuccess  Verdict = "Compilation Success"
	VerdictWrongAnswer         Verdict = "Wrong Answer"
	VerdictRuntimeError        Verdict = "Runtime Error"
	VerdictTimeLimitExceeded   Verdict = "Time Limit Exceeded"
	VerdictMemoryLimitExceeded Verdict = "Memory Limit Exceeded"
	VerdictSystemError         Verdict = "System Error"
	VerdictSPJError            Verdict = "SPJ Error"
	VerdictSkipped             Verdict = "Skipped"
)

var verdicts = map[Verdict]struct{}{
	VerdictWaiting:             {},
	VerdictRunning:             {},
	VerdictAccepted:            {},
	VerdictCompilationError:    {},
	VerdictCompilationSuccess:  {},
	VerdictWrongAnswer:         {},
	VerdictRuntimeError:        {},
	VerdictTimeLimitExceeded:   {},
	VerdictMemoryLimitExceeded: {},
	VerdictSystemError:         {},
	VerdictSPJError:            {},
	VerdictSkipped:             {},
}

// ParseVerdict maps wire text to a Verdict.
func ParseVerdict(s string) (Verdict, bool) {
	v := Verdict(s)
	_, ok := verdicts[v]
	return v, ok
}

// State is the lifecycle phase of a job. StateCanceled exists in the schema
// but no path produces it.
type State string

const (
	StateQueueing State = "Queueing"
	StateRunning  State = "Running"
	StateFinished State = "Finished"
	StateCanceled State = "Canceled"
)

// ParseState maps wire text to a State.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateQueueing, StateRunning, StateFinished, StateCanceled:
		return State(s), true
	}
	return "", false
}
