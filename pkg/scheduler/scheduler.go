// Package scheduler implements the Scheduler: the top-level state machine
// that drives a run from an empty or partially-implemented workspace to a
// compliant one, coordinating the Agent Runner, the Contract Summarizer,
// and the ambient circuit breaker / rate limiter safeguards.
//
// ADC-IMPLEMENTS: <sequential-workflow-algorithm-01>
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/owlduet-labs/adc-engine/internal/logger"
	"github.com/owlduet-labs/adc-engine/pkg/adcerr"
	"github.com/owlduet-labs/adc-engine/pkg/adcmodel"
	"github.com/owlduet-labs/adc-engine/pkg/contractdigest"
	"github.com/owlduet-labs/adc-engine/pkg/runner"
)

// State names one node of the Scheduler's fixed state machine.
type State string

const (
	StateBootstrap      State = "BOOTSTRAP"
	StateWriteContracts State = "WRITE_CONTRACTS"
	StateSummarize      State = "SUMMARIZE"
	StateInnerAudit     State = "INNER_AUDIT"
	StateInnerGen       State = "INNER_GEN"
	StateEval           State = "EVAL"
	StateRefine         State = "REFINE"
	StatePR             State = "PR"
	StateTerminal       State = "TERMINAL"
)

// AgentInvoker is the Scheduler's view of the Agent Runner: run one agent
// identity to completion and report a Result. Declared here, rather than
// depending on *runner.Runner directly, purely so tests can substitute a
// scripted invoker; runner.Runner satisfies this interface as-is.
type AgentInvoker interface {
	Invoke(ctx context.Context, req runner.Request) (runner.Result, error)
}

// Scheduler drives one run end to end.
type Scheduler struct {
	invoker       AgentInvoker
	summarizer    *contractdigest.CachingSummarizer
	breaker       *CircuitBreaker
	limiter       *RateLimiter
	thresholds    Thresholds
	workspacePath string
	contractsDir  string
	log           arbor.ILogger
}

// New builds a Scheduler rooted at workspacePath. breaker and limiter may
// both be nil, in which case their safeguards are simply not applied.
func New(invoker AgentInvoker, workspacePath string, breaker *CircuitBreaker, limiter *RateLimiter) *Scheduler {
	contractsDir := filepath.Join(workspacePath, "contracts")
	return &Scheduler{
		invoker:       invoker,
		summarizer:    contractdigest.NewCachingSummarizer(contractsDir),
		breaker:       breaker,
		limiter:       limiter,
		thresholds:    DefaultThresholds(),
		workspacePath: workspacePath,
		contractsDir:  contractsDir,
		log:           logger.GetLogger(),
	}
}

// WithLogger overrides the Scheduler's logger, for callers that want run
// output tagged differently than the process-wide default.
func (s *Scheduler) WithLogger(l arbor.ILogger) *Scheduler {
	s.log = l
	return s
}

// WithThresholds overrides the graduated acceptance policy.
func (s *Scheduler) WithThresholds(t Thresholds) *Scheduler {
	s.thresholds = t
	return s
}

// Close releases the Scheduler's contract-directory watcher.
func (s *Scheduler) Close() error {
	return s.summarizer.Close()
}

// Run executes the full state machine for task, never returning a Go error
// for a business-level failure: every terminal state becomes a RunResult
// with a stable status/reason pair callers can branch on.
func (s *Scheduler) Run(ctx context.Context, task adcmodel.Task) adcmodel.RunResult {
	rs := adcmodel.NewRunState(task)
	state := StateBootstrap

	var digestText string
	var stubFiles []string
	var progress *ProgressTracker
	var lastAuditVerdict AuditVerdict

	for {
		if err := ctx.Err(); err != nil {
			return adcmodel.RunResult{Status: "failed", Reason: adcerr.Reason("cancelled"), FinalState: rs}
		}

		s.log.Debug().
			Str("state", string(state)).
			Int("outer", rs.OuterIteration).
			Int("inner", rs.InnerIteration).
			Msg("scheduler state transition")

		switch state {
		case StateBootstrap:
			hasContracts, err := s.contractsExist()
			if err != nil {
				return s.fail(rs, adcerr.ReasonContractWriterFailed)
			}
			if hasContracts {
				state = StateSummarize
			} else {
				state = StateWriteContracts
			}

		case StateWriteContracts:
			created, err := s.writeContracts(ctx, rs, task)
			if err != nil {
				return s.fail(rs, adcerr.ReasonContractWriterFailed)
			}
			stubFiles = created
			state = StateSummarize

		case StateSummarize:
			digest, err := s.summarizer.Get()
			if err != nil {
				return s.fail(rs, adcerr.ReasonContractWriterFailed)
			}
			ranked, err := contractdigest.RankOverflow(ctx, digest, task.Description)
			if err == nil {
				digest = ranked
			}
			digestText = digest.Render()
			rs.InnerIteration = 0
			progress = &ProgressTracker{}
			state = StateInnerAudit

		case StateInnerAudit:
			rs.InnerIteration++
			verdict, err := s.runAudit(ctx, rs, digestText)
			if err != nil {
				if adcerr.IsReason(err, adcerr.ReasonCircuitOpen) {
					s.log.Warn().
						Int("outer", rs.OuterIteration).
						Int("inner", rs.InnerIteration).
						Msg("scheduler: circuit breaker open, aborting run")
					return s.fail(rs, adcerr.ReasonCircuitOpen)
				}
				return s.fail(rs, adcerr.ReasonMaxInnerIterations)
			}
			lastAuditVerdict = verdict
			progress.AddScore(verdict.ComplianceScore)
			rs.ComplianceScore = verdict.ComplianceScore
			rs.ImplementationIssues = verdict.ImplementationIssues
			if s.breaker != nil {
				s.breaker.RecordAudit(verdict.ComplianceScore, verdict.IssueCount())
			}

			target := s.thresholds.Target(rs.InnerIteration)
			stuck := progress.IsStuck()
			switch {
			case verdict.ComplianceScore >= target:
				state = StateEval
			case stuck:
				s.log.Warn().
					Int("outer", rs.OuterIteration).
					Int("inner", rs.InnerIteration).
					Float64("compliance_score", verdict.ComplianceScore).
					Msg("scheduler: stagnation detected, exiting inner loop")
				state = StateEval
			case rs.InnerIteration >= rs.Task.MaxInnerIterations:
				state = StateEval
			default:
				state = StateInnerGen
			}

		case StateInnerGen:
			workList := buildWorkList(lastAuditVerdict, stubFiles)
			succeeded := s.runCodeGen(ctx, rs, digestText, workList)
			if succeeded == 0 && len(workList) > 0 {
				state = StateEval
			} else {
				state = StateInnerAudit
			}

		case StateEval:
			if rs.ComplianceScore < s.thresholds.SuccessFloor {
				return s.fail(rs, adcerr.ReasonMaxInnerIterations)
			}
			verdict, err := s.runEvaluator(ctx, rs, digestText)
			if err != nil {
				return s.fail(rs, adcerr.ReasonEvaluatorFailed)
			}
			rs.Evaluator = adcmodel.EvaluatorVerdict{Satisfied: verdict.Satisfied, Feedback: verdict.Feedback}
			if verdict.Satisfied {
				s.log.Info().Int("outer", rs.OuterIteration).Msg("scheduler: evaluator satisfied, proceeding to PR")
				state = StatePR
			} else {
				s.log.Info().Int("outer", rs.OuterIteration).Msg("scheduler: evaluator not satisfied, refining")
				state = StateRefine
			}

		case StateRefine:
			if err := s.runRefiner(ctx, rs, digestText); err != nil {
				return s.fail(rs, adcerr.ReasonRefinerFailed)
			}
			s.summarizer.Invalidate()
			rs.OuterIteration++
			if rs.OuterIteration >= rs.Task.MaxOuterIterations {
				return s.fail(rs, adcerr.ReasonMaxOuterIterations)
			}
			state = StateSummarize

		case StatePR:
			prText, err := s.runPROrchestrator(ctx, rs, digestText)
			if err != nil {
				return s.fail(rs, adcerr.ReasonEvaluatorFailed)
			}
			return adcmodel.RunResult{
				Status:     "success",
				Reason:     adcerr.ReasonTestsPassed,
				FinalState: rs,
				PRURL:      prText,
			}

		case StateTerminal:
			return s.fail(rs, adcerr.ReasonMaxOuterIterations)
		}
	}
}

func (s *Scheduler) fail(rs *adcmodel.RunState, reason adcerr.Reason) adcmodel.RunResult {
	return adcmodel.RunResult{Status: "failed", Reason: reason, FinalState: rs}
}

func (s *Scheduler) contractsExist() (bool, error) {
	entries, err := os.ReadDir(s.contractsDir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			ext := filepath.Ext(e.Name())
			if ext == ".md" || ext == ".qmd" {
				return true, nil
			}
		}
	}
	return false, nil
}

// invoke runs one agent phase under the circuit breaker and rate limiter,
// recording it on rs regardless of outcome.
func (s *Scheduler) invoke(ctx context.Context, rs *adcmodel.RunState, identity runner.Identity, prompt, digest string) (runner.Result, error) {
	if s.breaker != nil && !s.breaker.Allow() {
		s.log.Warn().Str("agent", string(identity)).Msg("scheduler: circuit breaker refused invocation")
		return runner.Result{}, adcerr.New("scheduler", adcerr.ReasonCircuitOpen, nil)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return runner.Result{}, err
		}
	}

	result, err := s.invoker.Invoke(ctx, runner.Request{
		Identity:       identity,
		Prompt:         prompt,
		WorkspacePath:  s.workspacePath,
		ContractDigest: digest,
	})

	summary := summarize(result, err)
	rs.RecordPhase(string(identity), summary, adcmodel.PhaseRecord{
		InputTokens:         result.InputTokens,
		OutputTokens:        result.OutputTokens,
		CacheCreationTokens: result.CacheCreationTokens,
		CacheReadTokens:     result.CacheReadTokens,
	})

	if err != nil {
		if s.breaker != nil {
			s.breaker.RecordError(err.Error())
		}
		return result, err
	}
	if !result.Success {
		if s.breaker != nil {
			s.breaker.RecordError(result.Error)
		}
		return result, fmt.Errorf("scheduler: %s: %s", identity, result.Error)
	}
	return result, nil
}

// invokeWithTimeoutRetry wraps invoke with the contract-writer's special
// retry policy: up to three attempts, five seconds apart, but only for
// failures whose message mentions "timeout".
func (s *Scheduler) invokeWithTimeoutRetry(ctx context.Context, rs *adcmodel.RunState, identity runner.Identity, prompt, digest string) (runner.Result, error) {
	var result runner.Result
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		result, err = s.invoke(ctx, rs, identity, prompt, digest)
		if err == nil || !strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return result, err
		}
		if attempt < 2 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(5 * time.Second):
			}
		}
	}
	return result, err
}

func summarize(result runner.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	if !result.Success {
		return result.Error
	}
	text := strings.TrimSpace(result.Text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
