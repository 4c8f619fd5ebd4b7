// Package command describes the program a runner should launch: its path,
// arguments, environment overrides and working directory.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyProgram is returned when a command has no program to run
var ErrEmptyProgram = errors.New("command has no program")

// EnvOp is a single environment override. A nil Value removes the variable.
type EnvOp struct {
	Key   string
	Value *string
}

// Command is a read-only description of a process to launch
type Command struct {
	Program string
	Args    []string
	Dir     string

	env []EnvOp
}

// New creates a command for the given program and arguments
func New(program string, args ...string) *Command {
	return &Command{
		Program: program,
		Args:    append([]string(nil), args...),
	}
}

// Set overrides an environment variable for the launched process
func (c *Command) Set(key, value string) *Command {
	v := value
	c.env = append(c.env, EnvOp{Key: key, Value: &v})
	return c
}

// Remove drops an environment variable from the launched process
func (c *Command) Remove(key string) *Command {
	c.env = append(c.env, EnvOp{Key: key})
	return c
}

// SetDir sets the working directory of the launched process
func (c *Command) SetDir(dir string) *Command {
	c.Dir = dir
	return c
}

// EnvOps returns the environment overrides in the order they were applied
func (c *Command) EnvOps() []EnvOp {
	return append([]EnvOp(nil), c.env...)
}

// Validate checks that the command can be launched
func (c *Command) Validate() error {
	if strings.TrimSpace(c.Program) == "" {
		return ErrEmptyProgram
	}
	for _, op := range c.env {
		if op.Key == "" || strings.ContainsAny(op.Key, "=\x00") {
			return fmt.Errorf("invalid environment variable name %q", op.Key)
		}
	}
	return nil
}

// Environ applies the command's overrides on top of base, which is a list of
// KEY=VALUE pairs such as os.Environ(). Later overrides win over earlier ones
// and the relative order of untouched base entries is preserved.
func (c *Command) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(c.env))
	index := make(map[string]int, len(base))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := index[key]; ok {
			out[i] = kv
			continue
		}
		index[key] = len(out)
		out = append(out, kv)
	}

	removed := make(map[int]bool)
	for _, op := range c.env {
		i, ok := index[op.Key]
		if op.Value == nil {
			if ok {
				removed[i] = true
			}
			continue
		}
		kv := op.Key + "=" + *op.Value
		if ok {
			out[i] = kv
			delete(removed, i)
			continue
		}
		index[op.Key] = len(out)
		out = append(out, kv)
	}

	if len(removed) == 0 {
		return out
	}
	kept := out[:0]
	for i, kv := range out {
		if !removed[i] {
			kept = append(kept, kv)
		}
	}
	return kept
}

// String renders the program and arguments for log output
func (c *Command) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}
