// Package app defines the runtime contract shared by executable entrypoints.
//
// cmd/* binaries start application components through Runner without
// depending on their concrete wiring.
package app

// Runner represents a runnable application component.
type Runner interface {
	Run() error
}
