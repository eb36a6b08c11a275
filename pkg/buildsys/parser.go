package buildsys

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultRecipe is the installer pipeline used when the project doesn't provide its own recipe.
//
//go:embed installer.star
var DefaultRecipe []byte

// DefaultRecipeName is the file name the embedded recipe pretends to have inside the project root.
const DefaultRecipeName = "installer.star"

// VersionFunc returns the version of the project the recipe is building.
type VersionFunc func(ctx context.Context) (string, error)

// ScriptConfig describes a recipe to evaluate.
type ScriptConfig struct {
	// Filename is used to resolve relative paths and in error messages.
	Filename string
	// Source overrides the content of Filename.
	Source      []byte
	ProjectRoot string
	Options     map[string]string
	Version     VersionFunc
	// Configure calls the recipe's configure() function and collects the declared targets.
	Configure bool
}

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	targets      TargetList
	version      VersionFunc
	versionStr   string
	initPhase    bool
}

// * Helpers

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		value, ok := stringOrPath(item)
		if !ok {
			return nil, eris.Errorf("expected all items in %s to be strings or paths but found %s", field, item.Type())
		}
		result = append(result, value)
	}
	return result, nil
}

func processCmdParts(parts starlark.Tuple, parser *syntax.Parser, base string) (*syntax.CallExpr, error) {
	envVars := make([]string, 0, len(parts))
	for _, part := range parts {
		value, ok := part.(starlark.String)
		if !ok || !strings.Contains(value.GoString(), "=") {
			break
		}
		envVars = append(envVars, value.GoString())
	}

	var cmd *syntax.CallExpr
	if len(envVars) > 0 {
		joinedEnvVars := strings.Join(envVars, " ")
		result, err := parser.Parse(strings.NewReader(joinedEnvVars), "env vars")
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command vars %s", joinedEnvVars)
		}

		if len(result.Stmts) != 1 || result.Stmts[0].Cmd == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}

		var ok bool
		cmd, ok = result.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || cmd.Assigns == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}
	} else {
		cmd = new(syntax.CallExpr)
	}

	argCount := len(parts) - len(envVars)
	if argCount < 1 {
		return nil, eris.New("command is empty")
	}

	cmd.Args = make([]*syntax.Word, argCount)
	for a, arg := range parts[len(envVars):] {
		var encodedValue string

		switch value := arg.(type) {
		case starlark.String:
			encodedValue = value.GoString()
		case StarlarkPath:
			encodedValue = string(value)

			if filepath.IsAbs(encodedValue) {
				// absolute paths cause issues on Windows
				relValue, err := filepath.Rel(base, encodedValue)
				if err == nil {
					encodedValue = relValue
				}
			}

			encodedValue = filepath.ToSlash(encodedValue)
		default:
			return nil, eris.Errorf("found argument of type %s but only strings and paths are supported: %s", arg.Type(), arg.String())
		}

		var wordPart syntax.WordPart

		if encodedValue == "" || strings.ContainsAny(encodedValue, " $'\"*?;&|<>()") {
			node := new(syntax.SglQuoted)
			node.Value = strings.ReplaceAll(encodedValue, "'", `'"'"'`)
			wordPart = node
		} else {
			node := new(syntax.Lit)
			node.Value = encodedValue
			wordPart = node
		}

		cmd.Args[a] = &syntax.Word{Parts: []syntax.WordPart{wordPart}}
	}

	return cmd, nil
}

func processCmdList(fn string, name, phase, base string, cmds *starlark.List) ([]Command, error) {
	result := make([]Command, 0)
	if cmds == nil {
		return result, nil
	}

	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	parser := syntax.NewParser()

	iter := cmds.Iterate()
	defer iter.Done()

	var item starlark.Value
	idx := 0
	for iter.Next(&item) {
		var parts starlark.Tuple

		switch value := item.(type) {
		case starlark.String:
			result = append(result, Command{Target: name, Phase: phase, Content: value.GoString(), Index: idx})
			idx++
			continue
		case starlark.Tuple:
			parts = value
		case *starlark.List:
			parts = make(starlark.Tuple, value.Len())
			for subIdx := 0; subIdx < value.Len(); subIdx++ {
				parts[subIdx] = value.Index(subIdx)
			}
		default:
			return nil, eris.Errorf("%s: unexpected type %s in %s. Only strings, tuples and lists are valid", fn, item.Type(), phase)
		}

		cmd, err := processCmdParts(parts, parser, base)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to process %s command #%d", phase, idx)
		}

		strBuffer.Reset()
		err = printer.Print(&strBuffer, cmd)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to process %s command #%d", phase, idx)
		}

		result = append(result, Command{Target: name, Phase: phase, Content: strBuffer.String(), Index: idx})
		idx++
	}

	return result, nil
}

func scriptPos(thread *starlark.Thread) string {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	return fmt.Sprintf("%s:%d:%d", simplifyPath(ctx.projectRoot, ctx.filepath), pos.Line, pos.Col)
}

func info(thread *starlark.Thread, msg string) {
	log(getCtx(thread).ctx).Info().Msgf("%s: %s", scriptPos(thread), msg)
}

func warn(thread *starlark.Thread, msg string) {
	log(getCtx(thread).ctx).Warn().Msgf("%s: %s", scriptPos(thread), msg)
}

// * Builtin functions

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func target(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path *starlark.List
	var env *starlark.Dict
	var build *starlark.List
	var pkg *starlark.List
	var base starlark.Value

	ctx := getCtx(thread)
	if ctx.initPhase {
		return nil, eris.New("can only be called from configure()")
	}

	t := new(Target)

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "arch?", &t.Arch, "name?", &t.Name, "desc?", &t.Desc,
		"base?", &base, "env?", &env, "path?", &path, "build?", &build, "package?", &pkg)
	if err != nil {
		return nil, err
	}

	if t.Name == "" {
		t.Name = t.Arch
	}
	if t.Name == "" {
		t.Name = "target#" + nanoid.New()
	}

	if ctx.targets.Find(t.Name) != nil {
		return nil, eris.Errorf("target %s was declared twice", t.Name)
	}

	baseDir := "."
	if base != nil {
		var ok bool
		baseDir, ok = stringOrPath(base)
		if !ok {
			return nil, eris.Errorf("%s: got %s for base, want string or path", fn.Name(), base.Type())
		}
	}
	t.Base = normalizePath(ctx, baseDir)

	t.Path, err = starlarkIterable2stringSlice(path, "path")
	if err != nil {
		return nil, err
	}
	for idx, dir := range t.Path {
		t.Path[idx] = normalizePath(ctx, dir)
	}

	t.Env = map[string]string{}
	if env != nil {
		for _, rawKey := range env.Keys() {
			key, ok := rawKey.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", rawKey.Type())
			}

			rawValue, _, err := env.Get(rawKey)
			if err != nil {
				return nil, err
			}

			value, ok := stringOrPath(rawValue)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings and paths are supported", rawValue.Type(), key.GoString())
			}
			t.Env[key.GoString()] = value
		}
	}

	t.Build, err = processCmdList(fn.Name(), t.Name, PhaseBuild, t.Base, build)
	if err != nil {
		return nil, err
	}

	t.Package, err = processCmdList(fn.Name(), t.Name, PhasePackage, t.Base, pkg)
	if err != nil {
		return nil, err
	}

	if len(t.Build) == 0 && len(t.Package) == 0 {
		warn(thread, fmt.Sprintf("%s: target %s has no commands", fn.Name(), t.Name))
	}

	ctx.targets = append(ctx.targets, t)
	return t, nil
}

// RunScript evaluates a recipe and returns the declared options. If cfg.Configure is true, the
// recipe's configure function is called and the declared targets are returned in declaration order.
func RunScript(ctx context.Context, cfg ScriptConfig) (TargetList, map[string]ScriptOption, error) {
	projectRoot, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, nil, err
	}

	filename, err := filepath.Abs(cfg.Filename)
	if err != nil {
		return nil, nil, err
	}

	script := cfg.Source
	if script == nil {
		script, err = os.ReadFile(filename)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "failed to read recipe %s", cfg.Filename)
		}
	}

	optionValues := cfg.Options
	if optionValues == nil {
		optionValues = map[string]string{}
	}

	builtins := starlark.StringDict{
		"OS":              starlark.String(runtime.GOOS),
		"ARCH":            starlark.String(runtime.GOARCH),
		"info":            starlark.NewBuiltin("info", starInfo),
		"warn":            starlark.NewBuiltin("warn", starWarn),
		"error":           starlark.NewBuiltin("error", starError),
		"resolve_path":    starlark.NewBuiltin("resolve_path", resolvePath),
		"option":          starlark.NewBuiltin("option", option),
		"getenv":          starlark.NewBuiltin("getenv", getenv),
		"setenv":          starlark.NewBuiltin("setenv", setenv),
		"prepend_path":    starlark.NewBuiltin("prepend_path", prependPathDir),
		"read_yaml":       starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":           starlark.NewBuiltin("isdir", starIsdir),
		"isfile":          starlark.NewBuiltin("isfile", starIsfile),
		"project_version": starlark.NewBuiltin("project_version", projectVersion),
		"target":          starlark.NewBuiltin("target", target),
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: optionValues,
		envOverrides: make(map[string]string),
		targets:      make(TargetList, 0),
		yamlCache:    make(map[string]interface{}),
		version:      cfg.Version,
		initPhase:    true,
	}
	thread.SetLocal("parserCtx", &threadCtx)

	displayName := simplifyPath(projectRoot, filename)
	globals, err := starlark.ExecFile(thread, displayName, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, eris.Errorf("failed to execute %s:\n%s", displayName, evalError.Backtrace())
		}
		return nil, nil, eris.Wrapf(err, "failed to execute %s", displayName)
	}

	for name := range optionValues {
		if _, ok := threadCtx.options[name]; !ok {
			log(ctx).Warn().Msgf("%s does not declare the option %s", displayName, name)
		}
	}

	if !cfg.Configure {
		return TargetList{}, threadCtx.options, nil
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, nil, eris.Errorf("%s did not declare a configure function", displayName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, nil, eris.Errorf("%s did declare a configure value but it's not a function", displayName)
	}

	threadCtx.initPhase = false
	_, err = starlark.Call(thread, configureFunc, make(starlark.Tuple, 0), make([]starlark.Tuple, 0))
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, eris.New(evalError.Backtrace())
		}
		return nil, nil, eris.Wrapf(err, "failed configure call in %s", displayName)
	}

	for _, t := range threadCtx.targets {
		for name, value := range threadCtx.envOverrides {
			if _, present := t.Env[name]; !present {
				t.Env[name] = value
			}
		}
	}

	return threadCtx.targets, threadCtx.options, nil
}
