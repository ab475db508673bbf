package inference

import (
	"context"
	"sync"
)

// ScriptedAnalyzer is a deterministic fake of the external collaborator. Each
// call consumes the next step of a fixed script, so retry scenarios are exact
// rather than probabilistic. The script's last step repeats once exhausted.
type ScriptedAnalyzer struct {
	mu     sync.Mutex
	script []ScriptStep
	calls  int
}

// ScriptStep is one pre-planned outcome. Exactly one of Result or Err should
// be set; a nil pair counts as an empty success.
type ScriptStep struct {
	Result *Result
	Err    error
}

// Succeed is a convenience success step.
func Succeed(labels ...string) ScriptStep {
	return ScriptStep{Result: &Result{Labels: labels}}
}

// Fail is a convenience failure step.
func Fail(err error) ScriptStep {
	return ScriptStep{Err: err}
}

// NewScriptedAnalyzer builds a fake playing the given steps in order.
func NewScriptedAnalyzer(steps ...ScriptStep) *ScriptedAnalyzer {
	return &ScriptedAnalyzer{script: steps}
}

// Analyze plays the next script step. Context cancellation wins over the script.
func (s *ScriptedAnalyzer) Analyze(ctx context.Context, requestID string, _ []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	step := ScriptStep{Result: &Result{}}
	if len(s.script) > 0 {
		i := s.calls
		if i >= len(s.script) {
			i = len(s.script) - 1
		}
		step = s.script[i]
	}
	s.calls++
	s.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	res := *step.Result
	res.RequestID = requestID
	return &res, nil
}

// Calls reports how many times Analyze ran.
func (s *ScriptedAnalyzer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
