package agent

import (
	"fmt"
	"time"

	"github.com/sgrlabs/sgragent/core"
)

// Agent variant names. A variant is nothing more than a Config preset; no
// global state selects behavior at runtime.
const (
	VariantResearch = "research"
	VariantCoding   = "coding"
)

// Config carries every per-session parameter the execution loop needs. It is
// threaded explicitly into the loop at construction; sharing one mutable
// Config across concurrently running sessions is not supported.
type Config struct {
	// Variant names the preset this config was derived from. It is also the
	// model name advertised in outgoing frames.
	Variant string

	// Instructions is the system prompt text. It may contain text/template
	// markers rendered against session state before each model call.
	Instructions string

	// MaxIterations bounds completed reason/act cycles. Zero disables the cap.
	MaxIterations int

	// MaxSearches bounds executions of search-capability tools.
	MaxSearches int

	// MaxClarifications bounds clarification requests. The usual value is 1:
	// the agent may ask once, then must work with what it has.
	MaxClarifications int

	// MaxHistoryMessages bounds the conversation window sent to the model.
	// Zero disables truncation.
	MaxHistoryMessages int

	// ClarificationTimeout bounds how long the loop blocks waiting for an
	// external answer before failing the session.
	ClarificationTimeout time.Duration

	// MaxToolFailures is the budget of consecutive failed tool executions
	// before the loop forces termination.
	MaxToolFailures int

	// WorkingDirectory is handed to the session at creation.
	WorkingDirectory string
}

// ResearchConfig returns the preset for the research variant: bounded
// searching with a hard iteration cap.
func ResearchConfig() Config {
	return Config{
		Variant:              VariantResearch,
		MaxIterations:        10,
		MaxSearches:          4,
		MaxClarifications:    1,
		MaxHistoryMessages:   40,
		ClarificationTimeout: 5 * time.Minute,
		MaxToolFailures:      3,
	}
}

// CodingConfig returns the preset for the coding variant: effectively
// unbounded iterations with aggressive history truncation.
func CodingConfig() Config {
	return Config{
		Variant:              VariantCoding,
		MaxIterations:        100,
		MaxSearches:          4,
		MaxClarifications:    1,
		MaxHistoryMessages:   21,
		ClarificationTimeout: 5 * time.Minute,
		MaxToolFailures:      3,
	}
}

// VariantConfig resolves a variant name to its preset.
func VariantConfig(variant string) (Config, error) {
	switch variant {
	case VariantResearch:
		return ResearchConfig(), nil
	case VariantCoding:
		return CodingConfig(), nil
	default:
		return Config{}, &core.ConfigurationError{Reason: fmt.Sprintf("unknown agent variant %q", variant)}
	}
}

// Validate checks the config for values the loop cannot run with.
func (c Config) Validate() error {
	if c.Variant == "" {
		return &core.ConfigurationError{Reason: "variant must not be empty"}
	}
	if c.MaxIterations < 0 || c.MaxSearches < 0 || c.MaxClarifications < 0 {
		return &core.ConfigurationError{Reason: "resource limits must not be negative"}
	}
	if c.MaxHistoryMessages < 0 {
		return &core.ConfigurationError{Reason: "history window must not be negative"}
	}
	if c.ClarificationTimeout <= 0 {
		return &core.ConfigurationError{Reason: "clarification timeout must be positive"}
	}
	if c.MaxToolFailures <= 0 {
		return &core.ConfigurationError{Reason: "tool failure budget must be positive"}
	}
	return nil
}
