// Package contractdigest turns a corpus of human-written contract files into
// a small structured summary (a ContractDigest) that is stable across
// iterations and cheap enough to serve as a cacheable prefix for every Agent
// Runner invocation.
//
// ADC-IMPLEMENTS: <sequential-workflow-algorithm-02>
package contractdigest

import "strings"

// ContractEntry is the per-contract-file block of a ContractDigest.
type ContractEntry struct {
	// ContractID is the identifier extracted from the file's YAML front
	// matter.
	ContractID string

	// SourceFile is the contract file's base name.
	SourceFile string

	// ParityFiles are up to ten implementation file paths the contract
	// claims to cover.
	ParityFiles []string

	// Requirements are up to three bullet items from the contract's
	// Requirements section.
	Requirements []string
}

const (
	maxParityFiles  = 10
	maxRequirements = 3
)

// Digest is the ContractSummarizer's output: a bounded, deterministic
// summary of every contract file in a workspace. Immutable; callers replace
// it wholesale when contracts change.
type Digest struct {
	Entries []ContractEntry
}

// Render serializes the digest to the single string fed as the cacheable
// contract-context segment of every Agent Runner system prompt: a short
// header followed by one block per contract: a "## id (file)" line, a
// "Files:" line when parity files are known, one "- " line per requirement,
// and a blank line.
func (d Digest) Render() string {
	var b strings.Builder
	b.WriteString("# Contracts (")
	writeInt(&b, len(d.Entries))
	b.WriteString(")\n\n")

	for _, e := range d.Entries {
		b.WriteString("## ")
		b.WriteString(e.ContractID)
		b.WriteString(" (")
		b.WriteString(e.SourceFile)
		b.WriteString(")\n")

		if len(e.ParityFiles) > 0 {
			b.WriteString("Files: ")
			b.WriteString(strings.Join(e.ParityFiles, ", "))
			b.WriteString("\n")
		}
		for _, r := range e.Requirements {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// writeInt appends a small non-negative int without a strconv round trip.
func writeInt(b *strings.Builder, n int) {
	if n == 0 {
		b.WriteByte('0')
		return
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	b.Write(digits[i:])
}
