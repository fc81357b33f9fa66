// Package ull implements the Universal Library Loader: polyglot library
// introspection via same-language direct loading, length-prefixed RPC, or
// CLI fallback, so the Compliance Verifier can answer "does this
// implementation satisfy this contract?" regardless of what language it is
// written in.
package ull

import "time"

// Language identifies a detected workspace programming language.
type Language string

const (
	LanguagePython Language = "python"
	LanguageNodeJS Language = "nodejs"
	LanguageDart   Language = "dart"
	LanguageRust   Language = "rust"
	LanguageGo     Language = "go"
	LanguageJava   Language = "java"
	LanguageCPP    Language = "cpp"
)

// BridgeType names which bridge variant loaded a library.
type BridgeType string

const (
	BridgeDirect BridgeType = "direct"
	BridgeRPC    BridgeType = "rpc"
	BridgeCLI    BridgeType = "cli_fallback"
)

// Metadata describes the level of introspection possible for a loaded
// library.
type Metadata struct {
	DetectedLanguage Language
	BridgeType       BridgeType

	SupportsSignatureVerification bool
	SupportsTypeVerification      bool
	SupportsDocstringVerification bool

	LoadLatency time.Duration
	LoadError   string
}
