//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// GLSL sources compiled to SPIR-V next to them, with a .spv suffix.
var shaderSources = []string{"volume.vert", "volume.frag", "stencil.comp"}

// Compiles the GLSL shaders with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Runs go mod tidy.
func (Build) Tidy() error {
	return goModTidy()
}

func buildShaders() error {
	for _, src := range shaderSources {
		in := filepath.Join(shaderDir, src)
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", in, "-o", in+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
