package contractdigest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	contractIDPattern = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---`)
	idFieldPattern    = regexp.MustCompile(`(?m)^contract_id:\s*(.+)$`)
	parityFilePattern = regexp.MustCompile("(?m)^\\*\\*File:\\*\\*\\s*`([^`]+)`")
	requirementsHead  = regexp.MustCompile(`(?m)^#{1,3}\s*Requirements\s*$`)
	bulletPattern     = regexp.MustCompile(`^[-*]\s+(.+)$`)
)

// Summarizer reads the contracts directory of a workspace and produces a
// Digest covering the fields downstream prompts actually need: contract ID,
// parity files, and leading requirement bullets.
type Summarizer struct {
	// ContractsDir is the directory to scan, typically "<workspace>/contracts".
	ContractsDir string
}

// NewSummarizer returns a Summarizer rooted at contractsDir.
func NewSummarizer(contractsDir string) *Summarizer {
	return &Summarizer{ContractsDir: contractsDir}
}

// Summarize reads every contract file under ContractsDir and returns the
// resulting Digest. ".qmd" and ".md" extensions are both accepted; when both
// exist for the same base name, ".md" wins.
func (s *Summarizer) Summarize() (Digest, error) {
	files, err := s.contractFiles()
	if err != nil {
		return Digest{}, fmt.Errorf("contractdigest: listing contracts: %w", err)
	}

	var entries []ContractEntry
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return Digest{}, fmt.Errorf("contractdigest: reading %s: %w", f, err)
		}
		entry, err := summarizeOne(filepath.Base(f), string(content))
		if err != nil {
			return Digest{}, fmt.Errorf("contractdigest: summarizing %s: %w", f, err)
		}
		entries = append(entries, entry)
	}

	return Digest{Entries: entries}, nil
}

// contractFiles lists the contract files to summarize, resolving the
// ".qmd"/".md" collision rule by base name.
func (s *Summarizer) contractFiles() ([]string, error) {
	entries, err := os.ReadDir(s.ContractsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	byBase := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".qmd" && ext != ".md" {
			continue
		}
		base := strings.TrimSuffix(name, ext)
		full := filepath.Join(s.ContractsDir, name)
		if _, ok := byBase[base]; ok {
			if ext == ".md" {
				byBase[base] = full
			}
			continue
		}
		byBase[base] = full
	}

	out := make([]string, 0, len(byBase))
	for _, full := range byBase {
		out = append(out, full)
	}
	sort.Strings(out)
	return out, nil
}

// summarizeOne extracts one ContractEntry from raw contract text.
func summarizeOne(fileName, content string) (ContractEntry, error) {
	id, err := extractContractID(content)
	if err != nil {
		return ContractEntry{}, err
	}

	return ContractEntry{
		ContractID:   id,
		SourceFile:   fileName,
		ParityFiles:  extractParityFiles(content),
		Requirements: extractRequirements(content),
	}, nil
}

// extractContractID pulls contract_id out of the file's YAML front matter.
func extractContractID(content string) (string, error) {
	fm := contractIDPattern.FindStringSubmatch(content)
	if fm == nil {
		return "", fmt.Errorf("no YAML front matter found")
	}
	id := idFieldPattern.FindStringSubmatch(fm[1])
	if id == nil {
		return "", fmt.Errorf("contract_id field not found in front matter")
	}
	return strings.TrimSpace(id[1]), nil
}

// extractParityFiles returns up to maxParityFiles implementation file paths
// named on "**File:** `path`" lines.
func extractParityFiles(content string) []string {
	matches := parityFilePattern.FindAllStringSubmatch(content, -1)
	var out []string
	for _, m := range matches {
		out = append(out, m[1])
		if len(out) == maxParityFiles {
			break
		}
	}
	return out
}

// extractRequirements returns up to maxRequirements bullet items from the
// first "Requirements" section, if present.
func extractRequirements(content string) []string {
	loc := requirementsHead.FindStringIndex(content)
	if loc == nil {
		return nil
	}

	var out []string
	lines := strings.Split(content[loc[1]:], "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			break // next section header ends the Requirements block
		}
		if m := bulletPattern.FindStringSubmatch(trimmed); m != nil {
			out = append(out, m[1])
			if len(out) == maxRequirements {
				break
			}
		}
	}
	return out
}
