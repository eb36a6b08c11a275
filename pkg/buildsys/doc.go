// Package buildsys evaluates installer recipes. A recipe is a Starlark script which declares one
// target per architecture; each target's build and package commands run in mvdan.cc/sh so that
// the same recipe works on Windows and in POSIX shells.
package buildsys
