package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"tinychat/config"
)

// ExecuteFunction asks the server to run a function. A function that ran and
// failed is reported through the response (Success false), not as an error;
// errors are reserved for transport failures and unexpected answers.
func (c *Client) ExecuteFunction(ctx context.Context, name string, args map[string]any) (*FunctionResponse, error) {
	if args == nil {
		args = map[string]any{}
	}

	var out FunctionResponse
	err := c.postJSON(ctx, EndpointExecute, FunctionRequest{FunctionName: name, Arguments: args}, &out)
	if err != nil {
		// The server answers 400 with {"success": false, "error": ...} when the function itself fails
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest && gjson.Valid(se.Body) {
			body := gjson.Parse(se.Body)
			if success := body.Get("success"); success.Exists() && !success.Bool() {
				if config.DebugLog != nil {
					config.DebugLog.Printf("[Backend] Function %s failed: %s", name, body.Get("error").String())
				}
				return &FunctionResponse{
					Success:      false,
					FunctionName: name,
					Error:        body.Get("error").String(),
				}, nil
			}
		}
		return nil, fmt.Errorf("failed to execute function %s: %w", name, err)
	}

	if out.FunctionName == "" {
		out.FunctionName = name
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Backend] Function %s finished (success=%v)", name, out.Success)
	}
	return &out, nil
}

// ListFunctions returns the functions the server can execute
func (c *Client) ListFunctions(ctx context.Context) ([]FunctionDefinition, error) {
	data, err := c.getJSON(ctx, EndpointFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrUnexpectedResponse
	}

	functions := gjson.GetBytes(data, "functions")
	if !functions.IsArray() {
		return nil, ErrUnexpectedResponse
	}

	var defs []FunctionDefinition
	functions.ForEach(func(_, fn gjson.Result) bool {
		defs = append(defs, FunctionDefinition{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			Parameters:  fn.Get("parameters").Raw,
		})
		return true
	})
	return defs, nil
}
