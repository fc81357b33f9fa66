// Package verify implements the Compliance Verifier: it checks a loaded
// library (via a pkg/ull/bridge.Bridge) against the ExpectedInterface
// extracted from a contract's text, combining function-presence,
// signature, and marker-comment evidence into a single compliance score.
package verify

import (
	"regexp"
	"strings"
)

// ExpectedFunction is one function a contract's ExpectedInterface block
// requires an implementation to provide.
type ExpectedFunction struct {
	Name   string
	Params []string
}

// ExpectedInterface is the set of requirements extracted from a single
// contract document: the functions it requires and the block IDs its
// parity sections must each carry an ADC-IMPLEMENTS marker for.
//
// ADC-IMPLEMENTS: <verify-feature-01>
type ExpectedInterface struct {
	ContractID string
	BlockIDs   []string
	Functions  []ExpectedFunction

	// WebArtifactURL is set when the contract's frontmatter names a
	// web_artifact to smoke-test with a headless-Chrome probe. Empty when
	// the contract describes no browsable artifact.
	WebArtifactURL string
}

var (
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)
	contractIDPattern  = regexp.MustCompile(`(?m)^contract_id:\s*(.+)$`)
	webArtifactPattern = regexp.MustCompile(`(?m)^web_artifact:\s*(.+)$`)
	blockIDPattern     = regexp.MustCompile(`<([a-zA-Z0-9_-]+)>`)
	// pythonDefPattern and goFuncPattern both look for a function
	// declaration inside a fenced code block; the contract text this pack
	// works with is itself Go-flavored, so goFuncPattern is checked first.
	goFuncPattern    = regexp.MustCompile(`func\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(([^)]*)\)`)
	pythonDefPattern = regexp.MustCompile(`def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(([^)]*)\)`)
	codeBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")
)

// ExtractExpectedInterface parses a contract document's frontmatter for its
// contract_id, scans its full text for <block-id> markers, and scans its
// fenced code blocks for function declarations the implementation must
// provide.
func ExtractExpectedInterface(contractText string) ExpectedInterface {
	iface := ExpectedInterface{}

	if m := frontmatterPattern.FindStringSubmatch(contractText); m != nil {
		if idm := contractIDPattern.FindStringSubmatch(m[1]); idm != nil {
			iface.ContractID = strings.TrimSpace(idm[1])
		}
		if wam := webArtifactPattern.FindStringSubmatch(m[1]); wam != nil {
			iface.WebArtifactURL = strings.Trim(strings.TrimSpace(wam[1]), `"'`)
		}
	}

	seen := make(map[string]bool)
	for _, m := range blockIDPattern.FindAllStringSubmatch(contractText, -1) {
		id := m[1]
		if !seen[id] {
			seen[id] = true
			iface.BlockIDs = append(iface.BlockIDs, id)
		}
	}

	funcSeen := make(map[string]bool)
	for _, block := range codeBlockPattern.FindAllStringSubmatch(contractText, -1) {
		body := block[1]
		for _, m := range goFuncPattern.FindAllStringSubmatch(body, -1) {
			addFunction(&iface, funcSeen, m[1], m[2])
		}
		for _, m := range pythonDefPattern.FindAllStringSubmatch(body, -1) {
			addFunction(&iface, funcSeen, m[1], m[2])
		}
	}

	return iface
}

func addFunction(iface *ExpectedInterface, seen map[string]bool, name, rawParams string) {
	if seen[name] {
		return
	}
	seen[name] = true
	var params []string
	for _, p := range strings.Split(rawParams, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			params = append(params, p)
		}
	}
	iface.Functions = append(iface.Functions, ExpectedFunction{Name: name, Params: params})
}
