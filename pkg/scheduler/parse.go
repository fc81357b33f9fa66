package scheduler

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// parseJSONLenient decodes text into out, trying three strategies in order:
// a direct parse, extraction from the first fenced code block, and the
// outermost {...} slice. This mirrors the three-strategy JSON recovery the
// Scheduler needs because model replies are not guaranteed to be pure JSON.
func parseJSONLenient(text string, out any) error {
	trimmed := strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	if m := fencedJSONPattern.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), out); err == nil {
			return nil
		}
	}

	if start := strings.IndexByte(trimmed, '{'); start >= 0 {
		if end := strings.LastIndexByte(trimmed, '}'); end > start {
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), out); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("scheduler: could not parse JSON from reply: %.200s", trimmed)
}

// AuditVerdict is the auditor agent's parsed reply.
type AuditVerdict struct {
	ComplianceScore      float64  `json:"compliance_score"`
	EnvironmentIssues    []string `json:"environment_issues"`
	ImplementationIssues []string `json:"implementation_issues"`
	// Violations is the legacy field name; treated as an alias for
	// ImplementationIssues when that field is absent or empty.
	Violations []string `json:"violations"`
	Files      []string `json:"files"`
}

// parseAuditVerdict parses an auditor reply, applying the
// implementation_issues/violations fallback.
func parseAuditVerdict(text string) (AuditVerdict, error) {
	var v AuditVerdict
	if err := parseJSONLenient(text, &v); err != nil {
		return AuditVerdict{}, err
	}
	if len(v.ImplementationIssues) == 0 && len(v.Violations) > 0 {
		v.ImplementationIssues = v.Violations
	}
	return v, nil
}

// IssueCount returns the total number of issues this verdict reports
// (duplicates included), used by the circuit breaker's progress signal.
func (v AuditVerdict) IssueCount() int {
	return len(v.EnvironmentIssues) + len(v.ImplementationIssues)
}

// EvaluatorVerdict is the system-evaluator agent's parsed reply.
type EvaluatorVerdict struct {
	Satisfied bool   `json:"satisfied"`
	Feedback  string `json:"feedback"`
}

// finalVerdictWrapper unwraps the legacy "FINAL_VERDICT" nesting some
// evaluator replies use instead of a flat object.
type finalVerdictWrapper struct {
	FinalVerdict *EvaluatorVerdict `json:"FINAL_VERDICT"`
}

func parseEvaluatorVerdict(text string) (EvaluatorVerdict, error) {
	var wrapper finalVerdictWrapper
	if err := parseJSONLenient(text, &wrapper); err == nil && wrapper.FinalVerdict != nil {
		return *wrapper.FinalVerdict, nil
	}

	var v EvaluatorVerdict
	if err := parseJSONLenient(text, &v); err != nil {
		return EvaluatorVerdict{}, err
	}
	return v, nil
}

// buildWorkList turns an AuditVerdict's implementation issues into a
// per-file issue map. Each issue string is checked for a leading
// "path: issue text" form whose path segment looks like a file reference
// (contains a "/" or a "."); issues that do not match that shape are
// attached to every file named in verdict.Files instead. When neither
// yields a file reference and stubFiles is non-empty, every stub file gets
// a single synthetic "complete the stub" issue.
func buildWorkList(verdict AuditVerdict, stubFiles []string) map[string][]string {
	workList := make(map[string][]string)

	for _, issue := range verdict.ImplementationIssues {
		if path, rest, ok := splitPathPrefixedIssue(issue); ok {
			workList[path] = append(workList[path], rest)
			continue
		}
		for _, f := range verdict.Files {
			workList[f] = append(workList[f], issue)
		}
	}

	if len(workList) == 0 && len(stubFiles) > 0 {
		for _, f := range stubFiles {
			workList[f] = []string{"complete the stub"}
		}
	}

	return workList
}

// splitPathPrefixedIssue splits "path: issue text" into its two halves,
// reporting ok=false when the prefix before the first colon does not look
// like a file path.
func splitPathPrefixedIssue(issue string) (path, rest string, ok bool) {
	idx := strings.Index(issue, ":")
	if idx <= 0 {
		return "", "", false
	}
	candidate := strings.TrimSpace(issue[:idx])
	if !strings.ContainsAny(candidate, "/.") || strings.Contains(candidate, " ") {
		return "", "", false
	}
	return candidate, strings.TrimSpace(issue[idx+1:]), true
}

// ContractPlan is the writer agent's proposed list of logical contract
// names, requested before any contract file exists.
type ContractPlan struct {
	Contracts []string `json:"contracts"`
}

func parseContractPlan(text string) (ContractPlan, error) {
	var direct []string
	if err := parseJSONLenient(text, &direct); err == nil && len(direct) > 0 {
		return ContractPlan{Contracts: direct}, nil
	}

	var wrapped ContractPlan
	if err := parseJSONLenient(text, &wrapped); err != nil {
		return ContractPlan{}, err
	}
	if len(wrapped.Contracts) == 0 {
		return ContractPlan{}, fmt.Errorf("scheduler: writer plan named no contracts")
	}
	return wrapped, nil
}
