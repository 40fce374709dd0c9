package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/payonce/payonce"
)

// ExtractIdempotencyKey extracts the idempotency token from MCP request
// _meta. Returns the empty string when the key is absent, not a string, or
// blank; the caller decides whether that is an error.
func ExtractIdempotencyKey(meta map[string]interface{}) string {
	if meta == nil {
		return ""
	}
	raw, ok := meta[IdempotencyKeyMetaKey]
	if !ok {
		return ""
	}
	token, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// AttachIdempotencyKey returns a copy of meta with the idempotency token set
// under the well-known key. A nil meta is allocated.
func AttachIdempotencyKey(meta map[string]interface{}, token string) map[string]interface{} {
	result := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		result[k] = v
	}
	result[IdempotencyKeyMetaKey] = token
	return result
}

// requestMeta pulls the _meta map out of an incoming tool call request.
func requestMeta(req *mcpsdk.CallToolRequest) map[string]interface{} {
	if req == nil || req.Params == nil || req.Params.Meta == nil {
		return nil
	}
	return req.Params.Meta.GetMeta()
}

// jsonResult builds a successful tool result carrying the payload both as
// JSON text content and as structured content.
func jsonResult(payload interface{}) (*mcpsdk.CallToolResult, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}

	var structured map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &structured); err != nil {
		return nil, fmt.Errorf("failed to unmarshal structured content: %w", err)
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(payloadBytes)},
		},
		StructuredContent: structured,
	}, nil
}

// errorResult builds a failed tool result from a payment error, carrying the
// structured payload in both formats so clients can reconstruct the error.
func errorResult(pe *payonce.PaymentError) *mcpsdk.CallToolResult {
	payload := ErrorPayload{
		Code:    pe.Code,
		Message: pe.Message,
		Details: pe.Details,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		// Marshalling a flat payload cannot realistically fail; degrade to text
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: pe.Message},
			},
		}
	}

	var structured map[string]interface{}
	_ = json.Unmarshal(payloadBytes, &structured)

	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(payloadBytes)},
		},
		StructuredContent: structured,
	}
}

// invalidArgsResult builds a failed tool result for malformed arguments.
func invalidArgsResult(message string) *mcpsdk.CallToolResult {
	return errorResult(payonce.NewPaymentError(payonce.ErrCodeInvalidArgument, message, nil))
}

// ParseToolError reconstructs a payment error from a failed tool result
// (dual format: structured content preferred, first text content as
// fallback). Returns nil when the result is not an error or carries no
// recognizable payload.
func ParseToolError(result *mcpsdk.CallToolResult) *payonce.PaymentError {
	if result == nil || !result.IsError {
		return nil
	}

	// Try structuredContent first (preferred)
	if result.StructuredContent != nil {
		if obj, ok := result.StructuredContent.(map[string]interface{}); ok {
			if pe := paymentErrorFromObject(obj); pe != nil {
				return pe
			}
		}
	}

	// Fallback to content[0].text
	for _, item := range result.Content {
		text, ok := item.(*mcpsdk.TextContent)
		if !ok || text.Text == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(text.Text), &obj); err != nil {
			continue
		}
		if pe := paymentErrorFromObject(obj); pe != nil {
			return pe
		}
	}

	return nil
}

// paymentErrorFromObject decodes an ErrorPayload-shaped object.
func paymentErrorFromObject(obj map[string]interface{}) *payonce.PaymentError {
	if _, hasCode := obj["code"]; !hasCode {
		return nil
	}

	objBytes, err := json.Marshal(obj)
	if err != nil {
		return nil
	}

	var payload ErrorPayload
	if err := json.Unmarshal(objBytes, &payload); err != nil {
		return nil
	}
	if payload.Code == "" {
		return nil
	}

	return payonce.NewPaymentError(payload.Code, payload.Message, payload.Details)
}

// firstText returns the first text content of a result, for error reporting.
func firstText(result *mcpsdk.CallToolResult) string {
	for _, item := range result.Content {
		if text, ok := item.(*mcpsdk.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// decodeResult unmarshals a successful tool result into out, preferring the
// structured content and falling back to the first text content.
func decodeResult(result *mcpsdk.CallToolResult, out interface{}) error {
	if result.StructuredContent != nil {
		structuredBytes, err := json.Marshal(result.StructuredContent)
		if err == nil {
			if err := json.Unmarshal(structuredBytes, out); err == nil {
				return nil
			}
		}
	}

	text := firstText(result)
	if text == "" {
		return fmt.Errorf("tool result carries no decodable payload")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to decode tool result: %w", err)
	}
	return nil
}
