package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlduet-labs/adc-engine/pkg/adcerr"
	"github.com/owlduet-labs/adc-engine/pkg/adcmodel"
	"github.com/owlduet-labs/adc-engine/pkg/runner"
)

type scriptedInvoker struct {
	responses map[runner.Identity][]runner.Result
	calls     []runner.Identity
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req runner.Request) (runner.Result, error) {
	s.calls = append(s.calls, req.Identity)
	queue := s.responses[req.Identity]
	if len(queue) == 0 {
		return runner.Result{}, fmt.Errorf("scriptedInvoker: no response queued for %s", req.Identity)
	}
	r := queue[0]
	s.responses[req.Identity] = queue[1:]
	return r, nil
}

const sampleContract = `---
contract_id: main
---

# main

**File:** ` + "`src/hello.go`" + `

Requirements satisfy <hello-block>.
`

func TestScheduler_Run_EmptyWorkspaceSucceeds(t *testing.T) {
	workspace := t.TempDir()

	invoker := &scriptedInvoker{responses: map[runner.Identity][]runner.Result{
		runner.ContractWriter: {
			{Success: true, Text: `["main"]`},
			{Success: true, Text: sampleContract},
		},
		runner.Auditor: {
			{Success: true, Text: `{"compliance_score":0.5,"implementation_issues":["complete the stub"],"files":["src/hello.go"]}`},
			{Success: true, Text: `{"compliance_score":0.9,"implementation_issues":[],"files":["src/hello.go"]}`},
		},
		runner.CodeGenerator: {
			{Success: true, Text: "implemented"},
		},
		runner.SystemEvaluator: {
			{Success: true, Text: `{"satisfied":true,"feedback":"looks good"}`},
		},
		runner.PROrchestrator: {
			{Success: true, Text: "PR summary for hello function"},
		},
	}}

	sched := New(invoker, workspace, nil, nil)
	defer sched.Close()

	task := adcmodel.Task{Description: "add a hello function", Workspace: workspace}
	result := sched.Run(context.Background(), task)

	require.True(t, result.IsSuccess())
	assert.Equal(t, adcerr.ReasonTestsPassed, result.Reason)
	assert.Equal(t, "PR summary for hello function", result.PRURL)

	contractPath := filepath.Join(workspace, "contracts", "main.md")
	_, err := os.Stat(contractPath)
	assert.NoError(t, err)

	stubPath := filepath.Join(workspace, "src", "hello.go")
	_, err = os.Stat(stubPath)
	assert.NoError(t, err)
}

func TestScheduler_Run_StagnationTerminatesWithoutFourthCodeGen(t *testing.T) {
	workspace := t.TempDir()
	contractsDir := filepath.Join(workspace, "contracts")
	require.NoError(t, os.MkdirAll(contractsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(contractsDir, "main.md"), []byte(sampleContract), 0o644))

	stuckVerdict := `{"compliance_score":0.3,"implementation_issues":["src/hello.go: still incomplete"],"files":["src/hello.go"]}`

	invoker := &scriptedInvoker{responses: map[runner.Identity][]runner.Result{
		runner.Auditor: {
			{Success: true, Text: stuckVerdict},
			{Success: true, Text: stuckVerdict},
			{Success: true, Text: stuckVerdict},
		},
		runner.CodeGenerator: {
			{Success: true, Text: "partial"},
			{Success: true, Text: "partial"},
		},
	}}

	sched := New(invoker, workspace, nil, nil)
	defer sched.Close()

	task := adcmodel.Task{Description: "add a hello function", Workspace: workspace}
	result := sched.Run(context.Background(), task)

	require.False(t, result.IsSuccess())
	assert.Equal(t, adcerr.ReasonMaxInnerIterations, result.Reason)

	auditCount, genCount := 0, 0
	for _, id := range invoker.calls {
		switch id {
		case runner.Auditor:
			auditCount++
		case runner.CodeGenerator:
			genCount++
		}
	}
	assert.Equal(t, 3, auditCount)
	assert.Equal(t, 2, genCount)
}

func TestScheduler_Run_CircuitOpenTerminatesEarly(t *testing.T) {
	workspace := t.TempDir()
	contractsDir := filepath.Join(workspace, "contracts")
	require.NoError(t, os.MkdirAll(contractsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(contractsDir, "main.md"), []byte(sampleContract), 0o644))

	breaker := NewCircuitBreaker(CircuitBreakerConfig{})
	// Force the breaker straight to open before the run starts.
	for i := 0; i < 10; i++ {
		breaker.RecordError("boom")
	}

	invoker := &scriptedInvoker{responses: map[runner.Identity][]runner.Result{}}
	sched := New(invoker, workspace, breaker, nil)
	defer sched.Close()

	task := adcmodel.Task{Description: "add a hello function", Workspace: workspace}
	result := sched.Run(context.Background(), task)

	require.False(t, result.IsSuccess())
	assert.Equal(t, adcerr.ReasonCircuitOpen, result.Reason)
	assert.Empty(t, invoker.calls)
}
