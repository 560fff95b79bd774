package agent

import (
	"time"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/internal/util"
)

// InstructionProvider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from session state, environment, etc.
type InstructionProvider interface {
	Instruction(*core.Session) (string, error)
}

// InstructionFunc is a functional adapter to allow ordinary functions to be
// used as providers.
type InstructionFunc func(*core.Session) (string, error)

// Instruction implements InstructionProvider.
func (f InstructionFunc) Instruction(s *core.Session) (string, error) { return f(s) }

// Instruction represents either a static instruction string or a dynamic
// provider. Static text may contain template markers rendered against
// session state (working directory, date, iteration).
type Instruction struct {
	text     string
	provider InstructionProvider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p InstructionProvider) Instruction {
	return Instruction{provider: p}
}

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.Session) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text for the session, invoking the provider
// or rendering template markers as needed.
func (i Instruction) Resolve(session *core.Session) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(session)
	}

	snapshot := session.Clone()
	return util.RenderTemplate(i.text, map[string]any{
		"WorkingDirectory": snapshot.WorkingDirectory,
		"Date":             time.Now().Format("2006-01-02"),
		"Iteration":        snapshot.Iteration,
		"SearchCount":      snapshot.SearchCount,
	})
}
