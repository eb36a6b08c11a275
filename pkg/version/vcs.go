package version

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// CommandRunner executes name with args inside dir and returns its stdout.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (string, error)

// ExecRunner runs commands through os/exec.
func ExecRunner(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", eris.Wrapf(err, "%s failed: %s", name, msg)
		}
		return "", eris.Wrapf(err, "%s failed", name)
	}

	return string(out), nil
}

var (
	describePattern = regexp.MustCompile(`^(.+)-(\d+)-g([0-9a-f]+)(-dirty)?$`)
	bareHashPattern = regexp.MustCompile(`^([0-9a-f]{4,40})(-dirty)?$`)
	svnPattern      = regexp.MustCompile(`^(?:\d+[MSP]*:)?(\d+)([MSP]*)$`)
)

// GitDescription is the parsed output of git describe --tags --long --dirty --always.
type GitDescription struct {
	Tag     string
	Commits int
	Hash    string
	Dirty   bool
}

// ParseGitDescribe parses the output of git describe. Without a reachable tag, git prints the bare
// abbreviated hash and Tag stays empty.
func ParseGitDescribe(out string) (GitDescription, error) {
	out = strings.TrimSpace(out)

	if m := describePattern.FindStringSubmatch(out); m != nil {
		commits, err := strconv.Atoi(m[2])
		if err != nil {
			return GitDescription{}, eris.Wrapf(err, "invalid commit count in %q", out)
		}

		return GitDescription{Tag: m[1], Commits: commits, Hash: m[3], Dirty: m[4] != ""}, nil
	}

	if m := bareHashPattern.FindStringSubmatch(out); m != nil {
		return GitDescription{Hash: m[1], Dirty: m[2] != ""}, nil
	}

	return GitDescription{}, eris.Errorf("unexpected git describe output %q", out)
}

// SvnRevision is the parsed output of svnversion.
type SvnRevision struct {
	Revision string
	Modified bool
	Switched bool
}

// ParseSvnVersion parses svnversion output such as "1234", "1200:1234M" or "1234MS".
func ParseSvnVersion(out string) (SvnRevision, error) {
	out = strings.TrimSpace(out)

	m := svnPattern.FindStringSubmatch(out)
	if m == nil {
		return SvnRevision{}, eris.Errorf("not a svn working copy (svnversion printed %q)", out)
	}

	return SvnRevision{
		Revision: m[1],
		Modified: strings.Contains(m[2], "M"),
		Switched: strings.Contains(m[2], "S"),
	}, nil
}

// FromGit describes the checkout in dir. base is used when no tag is reachable.
func FromGit(ctx context.Context, run CommandRunner, dir string, base Info) (Info, error) {
	out, err := run(ctx, dir, "git", "describe", "--tags", "--long", "--dirty", "--always")
	if err != nil {
		return Info{}, err
	}

	desc, err := ParseGitDescribe(out)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Base:    base.Base,
		Source:  SourceGit,
		Commits: desc.Commits,
		Hash:    desc.Hash,
		Dirty:   desc.Dirty,
	}

	if desc.Tag != "" {
		info.Base, err = Parse(desc.Tag)
		if err != nil {
			return Info{}, eris.Wrapf(err, "tag %s is not a version", desc.Tag)
		}
	}

	return info, nil
}

// FromSvn reads the working copy revision in dir and attaches it to base.
func FromSvn(ctx context.Context, run CommandRunner, dir string, base Info) (Info, error) {
	out, err := run(ctx, dir, "svnversion", ".")
	if err != nil {
		return Info{}, err
	}

	rev, err := ParseSvnVersion(out)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Base:     base.Base,
		Source:   SourceSvn,
		Revision: rev.Revision,
		Dirty:    rev.Modified,
	}, nil
}

// Options configures Detect.
type Options struct {
	Source      Source
	ProjectFile string
	Dir         string
	Default     string
	Run         CommandRunner
	Logger      *zerolog.Logger
}

// Detect resolves the version from the configured source. With SourceAuto, git is tried first,
// then svn, then the project file and finally the default version.
func Detect(ctx context.Context, opts Options) (Info, error) {
	if opts.Run == nil {
		opts.Run = ExecRunner
	}
	if opts.Default == "" {
		opts.Default = DefaultVersion
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	fallback := Info{Base: mustParse(opts.Default), Source: SourceDefault}

	project := fallback
	if opts.ProjectFile != "" {
		info, err := FromProjectFile(opts.ProjectFile)
		switch {
		case err == nil && info.Source == SourceProject:
			project = info
		case err == nil:
			opts.Logger.Warn().Str("path", opts.ProjectFile).Msgf("No version found in %s", opts.ProjectFile)
		case opts.Source == SourceProject:
			return Info{}, err
		case !eris.Is(err, os.ErrNotExist):
			return Info{}, err
		default:
			opts.Logger.Debug().Err(err).Msg("project file unavailable")
		}
	}

	switch opts.Source {
	case SourceProject:
		return project, nil
	case SourceGit:
		return FromGit(ctx, opts.Run, opts.Dir, project)
	case SourceSvn:
		return FromSvn(ctx, opts.Run, opts.Dir, project)
	case SourceAuto, "":
		info, err := FromGit(ctx, opts.Run, opts.Dir, project)
		if err == nil {
			return info, nil
		}
		opts.Logger.Debug().Err(err).Msg("git lookup failed")

		info, err = FromSvn(ctx, opts.Run, opts.Dir, project)
		if err == nil {
			return info, nil
		}
		opts.Logger.Debug().Err(err).Msg("svn lookup failed")

		return project, nil
	}

	return Info{}, eris.Errorf("unknown version source %s", opts.Source)
}
