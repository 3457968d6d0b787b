//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the renderer tests only, they use the in-memory device.
func (Test) Renderer() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./engine/renderer/..."), withStream())
	return err
}
