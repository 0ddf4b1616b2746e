package chat

import (
	"tinychat/directive"
	"tinychat/model"
)

// Display receives the progress of a generation session. Methods are called
// from the goroutine running the session, in order:
//
//	Begin, Update*, then FunctionCall and FunctionResult, Done, or Error
//
// Begin opens a new assistant reply; after a function result the follow-up
// reply opens with another Begin.
type Display interface {
	Begin()
	Update(partial string)
	FunctionCall(call directive.Call)
	FunctionResult(msg model.Message)
	Error(text string)
	Done(final string)
}

// NopDisplay ignores every event
type NopDisplay struct{}

func (NopDisplay) Begin()                       {}
func (NopDisplay) Update(string)                {}
func (NopDisplay) FunctionCall(directive.Call)  {}
func (NopDisplay) FunctionResult(model.Message) {}
func (NopDisplay) Error(string)                 {}
func (NopDisplay) Done(string)                  {}
