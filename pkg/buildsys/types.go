package buildsys

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

// Command is a single shell script line declared by a recipe.
type Command struct {
	Target  string
	Phase   string
	Content string
	Index   int
}

// ToShellStmts parses the command into statements for the shell interpreter.
func (c Command) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(c.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%s:%d", c.Target, c.Phase, c.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", c.Content)
	}

	return result.Stmts, nil
}

// Phases of a target, in execution order
const (
	PhaseBuild   = "build"
	PhasePackage = "package"
)

// Target contains the processed values passed to target() by the recipe
type Target struct {
	Name    string
	Arch    string
	Desc    string
	Base    string
	Env     map[string]string
	Path    []string
	Build   []Command
	Package []Command
}

// Commands returns the commands of the given phase.
func (t *Target) Commands(phase string) []Command {
	switch phase {
	case PhaseBuild:
		return t.Build
	case PhasePackage:
		return t.Package
	}
	return nil
}

// TargetList holds the declared targets in declaration order
type TargetList []*Target

// Find returns the target with the given name or arch.
func (l TargetList) Find(name string) *Target {
	for _, t := range l {
		if t.Name == name || t.Arch == name {
			return t
		}
	}
	return nil
}

// Filter returns the targets matching any of the given archs (or names). An empty filter keeps everything.
func (l TargetList) Filter(archs []string) (TargetList, error) {
	if len(archs) == 0 {
		return l, nil
	}

	result := make(TargetList, 0, len(archs))
	for _, t := range l {
		for _, arch := range archs {
			if t.Arch == arch || t.Name == arch {
				result = append(result, t)
				break
			}
		}
	}

	for _, arch := range archs {
		if l.Find(arch) == nil {
			return nil, eris.Errorf("Target %s not found", arch)
		}
	}

	return result, nil
}

type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// Implement starlark.Value for *Target

// String returns a string representation of the target
func (t *Target) String() string {
	return fmt.Sprintf("<Target %s: %s>", t.Name, t.Desc)
}

// Type always returns "target" to indicate this type
func (t *Target) Type() string {
	return "target"
}

// Freeze doesn't do anything since targets are immutable anyway
func (t *Target) Freeze() {}

// Truth always returns true since a target can't be nil or None
func (t *Target) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since target is not hashable
func (t *Target) Hash() (uint32, error) {
	return 0, eris.New("target is not a hashable type")
}

type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i : i+1])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
