//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Precompiles the shaders, then runs the editor with editor.toml.
func (Run) Editor() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run editor...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "editor.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs every package test. glfw needs cgo.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withEnv("CGO_ENABLED", "1"), withStream())
	return err
}
