//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type cmdOptions struct {
	args   []string
	env    map[string]string
	stream bool
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = args
	}
}

// withEnv adds key=value to the command environment.
func withEnv(key, value string) cmdOption {
	return func(o *cmdOptions) {
		if o.env == nil {
			o.env = make(map[string]string)
		}
		o.env[key] = value
	}
}

func withStream() cmdOption {
	return func(o *cmdOptions) {
		o.stream = true
	}
}

// executeCmd runs command and returns its combined output. Output is
// only printed on failure unless streaming or mage -v is on.
func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	fmt.Printf("Executing: %s %s\n", command, strings.Join(opts.args, " "))

	var out bytes.Buffer
	var stdout, stderr io.Writer = &out, &out
	stream := mg.Verbose() || opts.stream
	if stream {
		stdout = io.MultiWriter(&out, os.Stdout)
		stderr = io.MultiWriter(&out, os.Stderr)
	}

	if _, err := sh.Exec(opts.env, stdout, stderr, command, opts.args...); err != nil {
		if !stream {
			fmt.Printf("... %s failed:\n%s\n", command, out.String())
		}
		return "", fmt.Errorf("%s: %w", command, err)
	}
	return out.String(), nil
}
