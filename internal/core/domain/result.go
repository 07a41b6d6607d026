package domain

import "fmt"

// Outcome classifies an invocation result.
type Outcome string

const (
	OutcomeExecutable  Outcome = "executable"
	OutcomeNothingToDo Outcome = "nothing_to_do"
	OutcomeFailed      Outcome = "failed"
)

// Result is what an invocation hands back to the submission pipeline.
type Result struct {
	Executable bool    `json:"canExec"`
	Payloads   []Call  `json:"callData,omitempty"`
	Message    string  `json:"message,omitempty"`
	Outcome    Outcome `json:"-"`
}

// Executable returns a result carrying calls that passed simulation.
func Executable(payloads []Call) Result {
	if len(payloads) == 0 {
		panic("domain: executable result without payloads")
	}
	return Result{Executable: true, Payloads: payloads, Outcome: OutcomeExecutable}
}

// NothingToDo returns a non-executable result for an invocation that found no work.
func NothingToDo(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...), Outcome: OutcomeNothingToDo}
}

// Failed returns a non-executable result for an invocation that could not act.
func Failed(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...), Outcome: OutcomeFailed}
}
