//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Precompiles every HLSL stage with dxc, to DXIL and to SPIR-V, next to
// its source.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the editor binary.
func (Build) Editor() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/anima-editor", "."), withStream())
	return err
}

func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*", "*.hlsl"))
	if err != nil {
		return err
	}
	for _, src := range sources {
		stage := strings.TrimSuffix(filepath.Base(src), ".hlsl")
		profile, entry, err := dxcTarget(stage)
		if err != nil {
			return err
		}
		base := strings.TrimSuffix(src, ".hlsl")
		if _, err := executeCmd("dxc", withArgs("-T", profile, "-E", entry, "-Fo", base+".dxil", src)); err != nil {
			return err
		}
		if _, err := executeCmd("dxc", withArgs("-spirv", "-T", profile, "-E", entry, "-Fo", base+".spv", src)); err != nil {
			return err
		}
	}
	return nil
}

func dxcTarget(stage string) (string, string, error) {
	switch stage {
	case "vertex":
		return "vs_6_0", "vs_main", nil
	case "pixel":
		return "ps_6_0", "ps_main", nil
	}
	return "", "", fmt.Errorf("unknown shader stage `%s`", stage)
}

// Removes precompiled shader binaries.
func (Build) Clean() error {
	for _, ext := range []string{"*.dxil", "*.spv"} {
		files, err := filepath.Glob(filepath.Join(shaderDir, "*", ext))
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil {
				return err
			}
		}
	}
	return nil
}
