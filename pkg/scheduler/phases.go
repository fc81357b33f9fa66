package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/owlduet-labs/adc-engine/pkg/adcmodel"
	"github.com/owlduet-labs/adc-engine/pkg/runner"
)

// writeContracts drives the contract-creation sub-flow: request a short
// plan from the writer agent, then request each contract in its own
// invocation, writing the contract file and materializing its stub files.
func (s *Scheduler) writeContracts(ctx context.Context, rs *adcmodel.RunState, task adcmodel.Task) ([]string, error) {
	planPrompt := fmt.Sprintf(
		"Propose 1 to 3 logical contract names covering this task, as a JSON array of strings. "+
			"Names must describe a concrete capability, never a documentation-only placeholder.\n\nTask: %s",
		task.Description,
	)
	planResult, err := s.invoke(ctx, rs, runner.ContractWriter, planPrompt, "")
	if err != nil {
		return nil, err
	}
	plan, err := parseContractPlan(planResult.Text)
	if err != nil {
		return nil, err
	}

	var allStubs []string
	for _, name := range plan.Contracts {
		contractPrompt := fmt.Sprintf(
			"Write the full contract document for %q addressing this task:\n\n%s\n\n"+
				"Include a parity section listing every implementation file path on its own line in the exact form "+
				"**File:** `path/to/file` and mark every required block with an <id> token the implementation must "+
				"carry as an ADC-IMPLEMENTS marker comment.",
			name, task.Description,
		)
		result, err := s.invokeWithTimeoutRetry(ctx, rs, runner.ContractWriter, contractPrompt, "")
		if err != nil {
			return allStubs, err
		}

		if _, err := writeContractFile(s.contractsDir, name, result.Text); err != nil {
			return allStubs, err
		}
		stubs, err := materializeStubs(s.workspacePath, name, result.Text)
		if err != nil {
			return allStubs, err
		}
		allStubs = append(allStubs, stubs...)
	}

	return allStubs, nil
}

// runAudit invokes the auditor agent, parses its verdict, and writes the
// per-iteration diagnostic dump.
func (s *Scheduler) runAudit(ctx context.Context, rs *adcmodel.RunState, digest string) (AuditVerdict, error) {
	prompt := "Audit the current workspace against the active contracts. Respond with a single JSON object: " +
		"{\"compliance_score\": <0-1>, \"environment_issues\": [...], \"implementation_issues\": [...], " +
		"\"files\": [...]}. List file paths whose Parity sections you checked in \"files\"."
	result, err := s.invoke(ctx, rs, runner.Auditor, prompt, digest)
	if err != nil {
		return AuditVerdict{}, err
	}

	verdict, err := parseAuditVerdict(result.Text)
	if err != nil {
		// A parse failure keeps the previous compliance score rather than
		// resetting it.
		verdict.ComplianceScore = rs.ComplianceScore
	}

	s.writeAuditReport(rs, verdict, result.Text)
	return verdict, nil
}

// writeAuditReport best-effort dumps the current iteration's diagnostic
// state to .audit_report_<outer>_<inner>.json. A write failure here is
// logged nowhere and never fails the run; the dump is a debugging aid, not
// part of the run's correctness contract.
func (s *Scheduler) writeAuditReport(rs *adcmodel.RunState, verdict AuditVerdict, rawReply string) {
	name := fmt.Sprintf(".audit_report_%d_%d.json", rs.OuterIteration, rs.InnerIteration)
	path := filepath.Join(s.workspacePath, name)

	report := map[string]any{
		"outer_iteration":       rs.OuterIteration,
		"inner_iteration":       rs.InnerIteration,
		"compliance_score":      verdict.ComplianceScore,
		"environment_issues":    verdict.EnvironmentIssues,
		"implementation_issues": verdict.ImplementationIssues,
		"files":                 verdict.Files,
		"raw_reply":             rawReply,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// runCodeGen fans out one code-generator invocation per file in workList,
// tolerating individual failures. It returns the count of files that
// succeeded.
func (s *Scheduler) runCodeGen(ctx context.Context, rs *adcmodel.RunState, digest string, workList map[string][]string) int {
	succeeded := 0
	for path, issues := range workList {
		if shouldSkipPath(path) {
			continue
		}
		prompt := fmt.Sprintf(
			"Address the following outstanding issues in %s only, creating the file if it does not yet exist:\n\n- %s",
			path, strings.Join(issues, "\n- "),
		)
		_, err := s.invoke(ctx, rs, runner.CodeGenerator, prompt, digest)
		if err == nil {
			succeeded++
		}
	}
	return succeeded
}

// shouldSkipPath excludes contracts/, VCS directories, caches, and
// virtual-env directories from the code-generator work list.
func shouldSkipPath(path string) bool {
	excluded := []string{"contracts/", ".git/", "__pycache__/", "node_modules/", "venv/", ".venv/"}
	normalized := filepath.ToSlash(path)
	for _, prefix := range excluded {
		if strings.HasPrefix(normalized, prefix) || strings.Contains(normalized, "/"+prefix) {
			return true
		}
	}
	return false
}

func (s *Scheduler) runEvaluator(ctx context.Context, rs *adcmodel.RunState, digest string) (EvaluatorVerdict, error) {
	prompt := fmt.Sprintf(
		"The implementation loop finished with compliance score %.2f and these remaining issues: %s. "+
			"Respond with a single JSON object: {\"satisfied\": <bool>, \"feedback\": \"...\"}.",
		rs.ComplianceScore, strings.Join(rs.ImplementationIssues, "; "),
	)
	result, err := s.invoke(ctx, rs, runner.SystemEvaluator, prompt, digest)
	if err != nil {
		return EvaluatorVerdict{}, err
	}
	return parseEvaluatorVerdict(result.Text)
}

func (s *Scheduler) runRefiner(ctx context.Context, rs *adcmodel.RunState, digest string) error {
	prompt := fmt.Sprintf(
		"The evaluator was not satisfied with the current contracts or implementation. Feedback: %s\n\n"+
			"Revise whatever contracts or supporting documents address this feedback.",
		rs.Evaluator.Feedback,
	)
	_, err := s.invoke(ctx, rs, runner.Refiner, prompt, digest)
	return err
}

func (s *Scheduler) runPROrchestrator(ctx context.Context, rs *adcmodel.RunState, digest string) (string, error) {
	prompt := "The run succeeded. Summarize the changes into a pull-request description."
	result, err := s.invoke(ctx, rs, runner.PROrchestrator, prompt, digest)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
