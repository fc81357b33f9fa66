package ull

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// languageIndicators maps each supported language to the indicator
// filenames that, when present at a workspace root, count toward that
// language's detection score.
//
// ADC-IMPLEMENTS: <ull-feature-01>
var languageIndicators = map[Language][]string{
	LanguagePython: {"setup.py", "pyproject.toml", "requirements.txt", "Pipfile", "poetry.lock"},
	LanguageNodeJS: {"package.json", "package-lock.json", "yarn.lock", "tsconfig.json"},
	LanguageDart:   {"pubspec.yaml", "pubspec.lock"},
	LanguageRust:   {"Cargo.toml", "Cargo.lock"},
	LanguageGo:     {"go.mod", "go.sum"},
	LanguageJava:   {"pom.xml", "build.gradle", "build.gradle.kts", "settings.gradle"},
	LanguageCPP:    {"CMakeLists.txt", "Makefile", "BUILD.bazel"},
}

// DetectLanguage scans workspacePath for language indicator files and
// returns the highest-scoring language, along with which indicator files
// were found. Detection order over languages is made deterministic by
// iterating a sorted key list, so that an implausible tie always resolves
// the same way across runs.
func DetectLanguage(workspacePath string) (Language, map[string]bool, error) {
	info, err := os.Stat(workspacePath)
	if err != nil {
		return "", nil, fmt.Errorf("ull: workspace path does not exist: %s", workspacePath)
	}
	if !info.IsDir() {
		return "", nil, fmt.Errorf("ull: workspace path is not a directory: %s", workspacePath)
	}

	languages := make([]Language, 0, len(languageIndicators))
	for lang := range languageIndicators {
		languages = append(languages, lang)
	}
	sort.Slice(languages, func(i, j int) bool { return languages[i] < languages[j] })

	indicatorsFound := make(map[string]bool)
	scores := make(map[Language]int, len(languages))

	for _, lang := range languages {
		for _, indicator := range languageIndicators[lang] {
			_, statErr := os.Stat(filepath.Join(workspacePath, indicator))
			exists := statErr == nil
			indicatorsFound[indicator] = exists
			if exists {
				scores[lang]++
			}
		}
	}

	var best Language
	bestScore := -1
	for _, lang := range languages {
		if scores[lang] > bestScore {
			best = lang
			bestScore = scores[lang]
		}
	}

	if bestScore <= 0 {
		var all []string
		for _, lang := range languages {
			all = append(all, languageIndicators[lang]...)
		}
		sort.Strings(all)
		return "", nil, fmt.Errorf(
			"ull: unable to detect library language in %s\n  checked for: %v\n  fix: ensure workspace contains a language indicator file",
			workspacePath, dedupe(all),
		)
	}

	return best, indicatorsFound, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
