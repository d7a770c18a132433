// Package command maps the textual command names accepted on the MQTT, HTTP
// and CLI surfaces to controller operations.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

// ErrUnknownCommand is returned for a name that is not registered.
var ErrUnknownCommand = errors.New("unknown command")

// Controller is the command surface of the vacuum controller.
type Controller interface {
	EnableAuto() error
	DisableAuto() error
	ForceVacuumOn() error
	ForceVacuumOff() error
	ForcePumpOn() error
	ForcePumpOff() error
	ForceValveOpen() error
	ForceValveClose() error
}

// Command is one named operation.
type Command struct {
	Name string
	Help string
	run  func(Controller) error
}

var commands = []Command{
	{vacuum.CmdEnableAuto, "Enable Vacuum System", Controller.EnableAuto},
	{vacuum.CmdDisableAuto, "Disable Vacuum System", Controller.DisableAuto},
	{vacuum.CmdForceVacuumOn, "Force valve to open and pump to run", Controller.ForceVacuumOn},
	{vacuum.CmdForceVacuumOff, "Force valve to close and pump to stop", Controller.ForceVacuumOff},
	{vacuum.CmdForcePumpOn, "Force pump to run", Controller.ForcePumpOn},
	{vacuum.CmdForcePumpOff, "Force pump to stop", Controller.ForcePumpOff},
	{vacuum.CmdForceValveOpen, "Force valve to open", Controller.ForceValveOpen},
	{vacuum.CmdForceValveClose, "Force valve to close", Controller.ForceValveClose},
}

// List returns every command in registration order.
func List() []Command {
	return append([]Command(nil), commands...)
}

// Lookup finds a command by name, ignoring case and surrounding space.
func Lookup(name string) (Command, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Registry executes commands against a controller.
type Registry struct {
	ctrl Controller
}

// NewRegistry creates a Registry for ctrl.
func NewRegistry(ctrl Controller) *Registry {
	return &Registry{ctrl: ctrl}
}

// Execute runs the named command. It must be called from the reactor loop.
func (r *Registry) Execute(name string) error {
	c, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return c.run(r.ctrl)
}

// Loop runs functions on the reactor loop.
type Loop interface {
	Do(ctx context.Context, fn func() error) error
}

// Runner executes commands from any goroutine by hopping onto the loop.
type Runner struct {
	loop Loop
	reg  *Registry
}

// NewRunner creates a Runner.
func NewRunner(loop Loop, reg *Registry) *Runner {
	return &Runner{loop: loop, reg: reg}
}

// Run executes the named command on the loop and returns its error.
// Unknown names are rejected without touching the loop.
func (r *Runner) Run(ctx context.Context, name string) error {
	c, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return r.loop.Do(ctx, func() error {
		return r.reg.Execute(c.Name)
	})
}
