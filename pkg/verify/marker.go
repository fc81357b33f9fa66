package verify

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"time"

	"github.com/owlduet-labs/adc-engine/internal/logger"
)

// markerPattern mirrors the rg/grep pattern used by the shelled-out
// scanners below, kept as a pure-Go fallback so FindMarkers still works in
// a container image that has neither ripgrep nor grep installed.
var markerPattern = regexp.MustCompile(`ADC-IMPLEMENTS:\s*<([a-zA-Z0-9_-]+)>`)

const markerScanTimeout = 10 * time.Second

// MarkerScanner finds "ADC-IMPLEMENTS: <block-id>" comments under a
// workspace directory, preferring ripgrep, falling back to grep, and
// falling back again to an in-process regex walk if neither binary is on
// PATH.
//
// ADC-IMPLEMENTS: <verify-feature-02>
type MarkerScanner struct {
	globs []string
}

// NewMarkerScanner builds a scanner. globs restricts the scan to matching
// filenames (e.g. "*.go"); nil scans every file.
func NewMarkerScanner(globs ...string) *MarkerScanner {
	return &MarkerScanner{globs: globs}
}

// FindMarkers returns the set of distinct block IDs marked anywhere under
// root.
func (s *MarkerScanner) FindMarkers(ctx context.Context, root string) (map[string]bool, error) {
	found, err := s.findWithRipgrep(ctx, root)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		logger.GetLogger().Warn().Str("root", root).Err(err).Msg("verify: ripgrep marker scan failed")
		return nil, err
	}

	found, err = s.findWithGrep(ctx, root)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		logger.GetLogger().Warn().Str("root", root).Err(err).Msg("verify: grep marker scan failed")
		return nil, err
	}

	logger.GetLogger().Warn().Str("root", root).Msg("verify: neither rg nor grep found on PATH, falling back to in-process walk")
	return s.findWithWalk(root)
}

func (s *MarkerScanner) findWithRipgrep(ctx context.Context, root string) (map[string]bool, error) {
	cctx, cancel := context.WithTimeout(ctx, markerScanTimeout)
	defer cancel()

	args := []string{
		"--no-heading", "--no-filename",
		`ADC-IMPLEMENTS:\s*<([a-zA-Z0-9_-]+)>`,
		"--only-matching", "--replace", "$1",
		root,
	}
	for _, g := range s.globs {
		args = append(args, "--glob", g)
	}

	out, err := runCapturingOutput(cctx, "rg", args...)
	if err != nil {
		return nil, err
	}
	return linesToSet(out), nil
}

func (s *MarkerScanner) findWithGrep(ctx context.Context, root string) (map[string]bool, error) {
	cctx, cancel := context.WithTimeout(ctx, markerScanTimeout)
	defer cancel()

	args := []string{"-rhoE", `ADC-IMPLEMENTS:[[:space:]]*<[^>]+>`}
	for _, g := range s.globs {
		args = append(args, "--include="+g)
	}
	args = append(args, root)
	out, err := runCapturingOutput(cctx, "grep", args...)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool)
	for _, m := range markerPattern.FindAllSubmatch(out, -1) {
		found[string(m[1])] = true
	}
	return found, nil
}

func (s *MarkerScanner) findWithWalk(root string) (map[string]bool, error) {
	found := make(map[string]bool)
	err := walkTextFiles(root, s.globs, func(content []byte) {
		for _, m := range markerPattern.FindAllSubmatch(content, -1) {
			found[string(m[1])] = true
		}
	})
	return found, err
}

func runCapturingOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if errors.Is(err, exec.ErrNotFound) {
		return nil, err
	}
	// Both rg and grep exit 1 on "no matches found", which is not a
	// scanner failure; only report a genuine run error alongside empty
	// output.
	if err != nil && stdout.Len() == 0 {
		if _, ok := err.(*exec.ExitError); ok {
			return stdout.Bytes(), nil
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func linesToSet(out []byte) map[string]bool {
	set := make(map[string]bool)
	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			set[string(line)] = true
		}
	}
	return set
}

// VerifyCoverage partitions requiredBlockIDs into covered and missing
// given the set found by FindMarkers. Every required ID lands in exactly
// one of the two slices.
func VerifyCoverage(requiredBlockIDs []string, found map[string]bool) (covered, missing []string) {
	for _, id := range requiredBlockIDs {
		if found[id] {
			covered = append(covered, id)
		} else {
			missing = append(missing, id)
		}
	}
	return covered, missing
}
