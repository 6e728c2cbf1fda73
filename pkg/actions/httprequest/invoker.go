// Package httprequest invokes app actions over HTTP.
package httprequest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/dukex/relay/pkg/template"
	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"
)

// StatusCodeKey holds the response status in the action output. Keys starting
// with "__" are metadata and are left out of merges.
const StatusCodeKey = "__status_code"

const maxBodySize = 10 << 20

// Invoker calls action definitions as HTTP requests. URL and header values are
// templates rendered against the input and the decrypted credentials, exposed
// as .credentials.
type Invoker struct {
	client *http.Client
	logger *slog.Logger
}

var _ protocol.ActionInvoker = (*Invoker)(nil)

func NewInvoker(logger *slog.Logger, client *http.Client) *Invoker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Invoker{
		client: client,
		logger: logger.With("module", "httprequest"),
	}
}

func (i *Invoker) Call(ctx context.Context, action *models.ActionDefinition, credentials map[string]any, input map[string]any) (map[string]any, error) {
	if err := ValidateInput(action.InputSchema, input); err != nil {
		return nil, err
	}

	data := make(map[string]any, len(input)+1)
	for k, v := range input {
		data[k] = v
	}

	data["credentials"] = credentials

	rawURL, err := template.RenderString(action.URL, data)
	if err != nil {
		return nil, recovery.NewConfigurationError("", "invalid action url", err)
	}

	method := strings.ToUpper(action.Method)
	if method == "" {
		method = http.MethodPost
	}

	req, err := newRequest(ctx, method, rawURL, input)
	if err != nil {
		return nil, err
	}

	for key, value := range action.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return nil, recovery.NewConfigurationError("", "invalid header "+key, err)
		}

		req.Header.Set(key, rendered)
	}

	if token, ok := credentials["access_token"].(string); ok && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	i.logger.DebugContext(ctx, "calling action", "action_id", action.ID, "method", method, "url", req.URL.Redacted())

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", action.ID, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			i.logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &recovery.TransientError{Category: recovery.CategoryNetwork, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &recovery.HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	return decodeOutput(resp.StatusCode, body), nil
}

func newRequest(ctx context.Context, method, rawURL string, input map[string]any) (*http.Request, error) {
	if method == http.MethodGet || method == http.MethodDelete {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, recovery.NewConfigurationError("", "invalid action url", err)
		}

		query := u.Query()

		for key, value := range input {
			s, err := cast.ToStringE(value)
			if err != nil {
				continue
			}

			query.Set(key, s)
		}

		u.RawQuery = query.Encode()

		req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return nil, recovery.NewConfigurationError("", "invalid request", err)
		}

		return req, nil
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, recovery.NewValidationError("input", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, recovery.NewConfigurationError("", "invalid request", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// decodeOutput turns a response into node output. JSON objects become the output
// itself; anything else is stored under "data".
func decodeOutput(status int, body []byte) map[string]any {
	output := map[string]any{}

	var decoded any
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			decoded = string(body)
		}
	}

	if obj, ok := decoded.(map[string]any); ok {
		output = obj
	} else if decoded != nil {
		output["data"] = decoded
	}

	output[StatusCodeKey] = status

	return output
}

// ValidateInput checks input against a JSON schema. An empty schema accepts anything.
func ValidateInput(schema map[string]any, input map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return recovery.NewConfigurationError("", "invalid input schema", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return recovery.NewValidationError("input", strings.Join(errs, "; "))
	}

	return nil
}
