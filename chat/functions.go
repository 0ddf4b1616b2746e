package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"tinychat/backend"
	"tinychat/config"
	"tinychat/directive"
	"tinychat/model"
)

// callFunction runs a call on the backend and turns the answer into a
// function message. The call outlives a user cancel so its result can still
// be recorded; it is bounded by the function timeout instead.
func (o *Orchestrator) callFunction(ctx context.Context, call directive.Call) model.Message {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.FunctionTimeout)
	defer cancel()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Executing %s", call.Summary())
	}

	resp, err := o.backend.ExecuteFunction(fctx, call.Name, call.Arguments)
	if err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Function %s failed: %v", call.Name, err)
	}
	return model.NewFunctionMessage(call.Name, FunctionResultContent(resp, err))
}

// FunctionResultContent renders a function execution result as message text.
// Failures become "Error: ..." so the model can still answer the user.
func FunctionResultContent(resp *backend.FunctionResponse, err error) string {
	if err != nil {
		return "Error: " + err.Error()
	}
	if resp == nil {
		return "Error: empty function response"
	}
	if !resp.Success {
		if resp.Error == "" {
			return "Error: function failed"
		}
		return "Error: " + resp.Error
	}

	switch v := resp.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
