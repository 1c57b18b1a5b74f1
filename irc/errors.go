package irc

import "fmt"

// CommandError is the closed set of structural failures reported by the
// MODE grammar validator. Callers switch on the concrete type to build the
// numeric reply.
type CommandError interface {
	error
	commandError()
}

// MissingParameterError reports an empty flag-string at Index.
type MissingParameterError struct {
	Index int
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("Missing parameter %d", e.Index)
}

// UnknownUserModeFlagError reports a user mode letter outside the user alphabet.
type UnknownUserModeFlagError struct {
	Index int
}

func (e *UnknownUserModeFlagError) Error() string {
	return fmt.Sprintf("Unknown umode flag in parameter %d", e.Index)
}

// UnknownModeError reports a channel mode letter the server does not know.
type UnknownModeError struct {
	Index  int
	Mode   rune
	Target string
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("Unknown mode %c in parameter %d", e.Mode, e.Index)
}

// InvalidModeParamError reports a missing, unexpected or malformed argument
// for a channel mode that takes one.
type InvalidModeParamError struct {
	Target string
	Mode   rune
	Param  string
	Reason string
}

func (e *InvalidModeParamError) Error() string {
	return fmt.Sprintf("Invalid mode parameter: %s %c %s %s", e.Target, e.Mode, e.Param, e.Reason)
}

// WrongParameterError reports a parameter that the command does not accept.
type WrongParameterError struct {
	Command string
	Index   int
}

func (e *WrongParameterError) Error() string {
	return fmt.Sprintf("Wrong parameter %d in command '%s'", e.Index, e.Command)
}

func (*MissingParameterError) commandError()    {}
func (*UnknownUserModeFlagError) commandError() {}
func (*UnknownModeError) commandError()         {}
func (*InvalidModeParamError) commandError()    {}
func (*WrongParameterError) commandError()      {}

// ValidationError is returned by the identifier validators.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
