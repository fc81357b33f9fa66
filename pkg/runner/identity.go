// Package runner implements the Agent Runner: one LLM tool-use loop
// invocation per agent identity, with system-prompt segments split into
// cacheable and non-cacheable parts and strict token accounting.
package runner

import (
	"embed"
	"fmt"
)

// Identity names one of the six fixed agent roles the Scheduler drives.
type Identity string

const (
	ContractWriter  Identity = "contract_writer"
	Auditor         Identity = "auditor"
	CodeGenerator   Identity = "code_generator"
	SystemEvaluator Identity = "system_evaluator"
	Refiner         Identity = "refiner"
	PROrchestrator  Identity = "pr_orchestrator"
)

//go:embed prompts/*.md
var rolePromptsFS embed.FS

var rolePromptFile = map[Identity]string{
	ContractWriter:  "prompts/contract_writer.md",
	Auditor:         "prompts/auditor.md",
	CodeGenerator:   "prompts/code_generator.md",
	SystemEvaluator: "prompts/system_evaluator.md",
	Refiner:         "prompts/refiner.md",
	PROrchestrator:  "prompts/pr_orchestrator.md",
}

var rolePromptCache = make(map[Identity]string, len(rolePromptFile))

// rolePrompt returns an agent's embedded role definition, loaded once and
// cached in memory for the process lifetime (the file content never
// changes at runtime, only the compiled binary does).
func rolePrompt(identity Identity) (string, error) {
	if cached, ok := rolePromptCache[identity]; ok {
		return cached, nil
	}

	path, ok := rolePromptFile[identity]
	if !ok {
		return "", fmt.Errorf("runner: unknown agent identity: %s", identity)
	}

	data, err := rolePromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("runner: loading role prompt for %s: %w", identity, err)
	}

	text := string(data)
	rolePromptCache[identity] = text
	return text, nil
}

// Tier names a model-capability class. The Scheduler never names a model
// string directly; it names an Identity, and a TierTable resolves that to
// a Tier, which a Runner resolves to a concrete model identifier.
type Tier string

const (
	TierStrong Tier = "strong"
	TierWeak   Tier = "weak"
)

// TierTable maps agent identities to the tier they run under.
type TierTable map[Identity]Tier

// UniformStrongTiers runs every agent on the strong tier: simplest, most
// expensive, used when cost is not a constraint.
func UniformStrongTiers() TierTable {
	t := make(TierTable, len(rolePromptFile))
	for identity := range rolePromptFile {
		t[identity] = TierStrong
	}
	return t
}

// CostMixedTiers runs reasoning-heavy agents (auditor, code generator,
// evaluator, writer) on the strong tier and the two lightweight agents
// (refiner, PR orchestrator) on the weak tier.
func CostMixedTiers() TierTable {
	return TierTable{
		ContractWriter:  TierStrong,
		Auditor:         TierStrong,
		CodeGenerator:   TierStrong,
		SystemEvaluator: TierStrong,
		Refiner:         TierWeak,
		PROrchestrator:  TierWeak,
	}
}

// maxOutputTokens returns the output-token cap for a tier: a stronger tier
// gets more room to reason and emit tool calls.
func maxOutputTokens(tier Tier) int {
	if tier == TierWeak {
		return 8192
	}
	return 16384
}
