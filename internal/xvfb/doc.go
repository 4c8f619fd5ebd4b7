// Package xvfb runs commands inside a headless X display by delegating to
// an external wrapper such as xvfb-run.
package xvfb
