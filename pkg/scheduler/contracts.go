package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/owlduet-labs/adc-engine/pkg/verify"
)

// parityFilePattern matches a contract's "**File:** `path`" lines, the same
// convention the Contract Summarizer reads.
var parityFilePattern = regexp.MustCompile("(?m)^\\*\\*File:\\*\\*\\s*`([^`]+)`")

var nonFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// sanitizeContractName turns a free-text contract name into a safe file
// base name for contracts/<name>.md.
func sanitizeContractName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nonFilenameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "contract"
	}
	return name
}

// writeContractFile writes the writer agent's contract text to
// contracts/<name>.md, creating the directory if needed.
func writeContractFile(contractsDir, name, text string) (string, error) {
	if err := os.MkdirAll(contractsDir, 0o755); err != nil {
		return "", fmt.Errorf("scheduler: creating contracts directory: %w", err)
	}
	path := filepath.Join(contractsDir, sanitizeContractName(name)+".md")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("scheduler: writing contract file %s: %w", path, err)
	}
	return path, nil
}

// materializeStubs parses a contract's parity section for implementation
// file paths and required block IDs, and writes an empty stub file per path
// carrying only the required marker comments and a one-line doc comment.
// Existing files are never overwritten: a stub only fills a gap the
// contract names but the workspace does not yet have.
//
// ADC-IMPLEMENTS: <sequential-workflow-algorithm-04>
func materializeStubs(workspacePath, contractID, contractText string) ([]string, error) {
	paths := parityFilePattern.FindAllStringSubmatch(contractText, -1)
	if len(paths) == 0 {
		return nil, nil
	}

	iface := verify.ExtractExpectedInterface(contractText)

	var created []string
	for _, m := range paths {
		relPath := m[1]
		fullPath := filepath.Join(workspacePath, relPath)

		if _, err := os.Stat(fullPath); err == nil {
			continue // the file already exists; leave it alone
		}

		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return created, fmt.Errorf("scheduler: creating directory for stub %s: %w", relPath, err)
		}

		content := stubContent(relPath, contractID, iface.BlockIDs)
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			return created, fmt.Errorf("scheduler: writing stub %s: %w", relPath, err)
		}
		created = append(created, relPath)
	}

	return created, nil
}

// stubContent builds a stub file's contents: a one-line doc comment naming
// the contract, followed by one marker comment per required block ID, in
// the comment syntax appropriate to the file's extension.
func stubContent(path, contractID string, blockIDs []string) string {
	prefix := commentPrefix(path)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(" stub generated from contract ")
	b.WriteString(contractID)
	b.WriteString("\n")
	for _, id := range blockIDs {
		b.WriteString(prefix)
		b.WriteString(" ADC-IMPLEMENTS: <")
		b.WriteString(id)
		b.WriteString(">\n")
	}
	return b.String()
}

func commentPrefix(path string) string {
	switch filepath.Ext(path) {
	case ".py", ".rb", ".sh", ".yaml", ".yml", ".toml":
		return "#"
	default:
		return "//"
	}
}
