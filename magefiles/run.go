//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the triangle sample.
func (Run) Engine() error {
	return runSample("triangle")
}

// Compiles the shaders and runs the eye tracked VRS sample.
func (Run) VRS() error {
	return runSample("vrs")
}

func runSample(sample string) error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Printf("Run %s sample...\n", sample)
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "config.toml", "-sample", sample), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs the unit tests of every package that does not need a window.
func (Test) All() error {
	packages := []string{
		"./engine/core/...",
		"./engine/containers/...",
		"./engine/math/...",
		"./engine/assets/...",
		"./engine/systems/...",
		"./engine/renderer",
	}
	args := append([]string{"test", "-race", "-count=1"}, packages...)
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}
