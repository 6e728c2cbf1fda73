package executors

import (
	"testing"

	"github.com/dukex/relay/pkg/functions"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTransformer(t *testing.T, operation string, cfg models.TransformerConfig, input map[string]any, outputs map[string]map[string]any) (map[string]any, error) {
	t.Helper()

	node := &models.Node{ID: "tx", Type: models.NodeTypeTransformer, Operation: operation, Config: cfg}

	return NewTransformer(functions.NewLibrary()).Execute(t.Context(), node, input, protocol.Env{Outputs: outputs})
}

func TestTransformer_Filter(t *testing.T) {
	input := map[string]any{
		"name":    "Ana",
		"secret":  "x",
		"address": map[string]any{"city": "Lisbon", "zip": "1000"},
	}

	output, err := runTransformer(t, models.OperationFilter, models.TransformerConfig{
		Include: []string{"name", "address"},
		Exclude: []string{"address.zip"},
	}, input, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "Ana", "address": map[string]any{"city": "Lisbon"}}, output)
	assert.Equal(t, "1000", input["address"].(map[string]any)["zip"], "input must not be mutated")
}

func TestTransformer_Map(t *testing.T) {
	output, err := runTransformer(t, models.OperationMap, models.TransformerConfig{
		Mappings: map[string]string{
			"contact.email": "email",
			"order_id":      "shop.id",
		},
	}, map[string]any{"email": "a@b.c"}, map[string]map[string]any{"shop": {"id": "o-1"}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"contact":  map[string]any{"email": "a@b.c"},
		"order_id": "o-1",
	}, output)
}

func TestTransformer_MergeSkipsMetadata(t *testing.T) {
	outputs := map[string]map[string]any{
		"crm":   {"id": 1.0, "__status_code": 200, "tags": []any{"a"}},
		"store": {"data": map[string]any{"total": 9.5}},
	}

	output, err := runTransformer(t, models.OperationMerge, models.TransformerConfig{
		Sources: []models.MergeSource{
			{NodeID: "crm"},
			{NodeID: "store", Path: "data"},
			{NodeID: "absent"},
		},
	}, map[string]any{"id": 0.0, "tags": []any{"z"}}, outputs)
	require.NoError(t, err)

	assert.Equal(t, 1.0, output["id"])
	assert.Equal(t, 9.5, output["total"])
	assert.Contains(t, output["tags"], "a")
	assert.NotContains(t, output, "__status_code")
}

func TestTransformer_MergeRejectsNonObject(t *testing.T) {
	_, err := runTransformer(t, models.OperationMerge, models.TransformerConfig{
		Sources: []models.MergeSource{{NodeID: "list", Path: "items"}},
	}, map[string]any{}, map[string]map[string]any{"list": {"items": []any{1}}})

	assert.True(t, recovery.IsValidationError(err))
}

func TestTransformer_Convert(t *testing.T) {
	output, err := runTransformer(t, models.OperationConvert, models.TransformerConfig{
		Conversions: []models.Conversion{
			{Field: "amount", Type: "number"},
			{Field: "active", Type: "boolean"},
			{Field: "count", Type: "string"},
			{Field: "when", Type: "date"},
			{Field: "payload", Type: "json"},
			{Field: "absent", Type: "number"},
		},
	}, map[string]any{
		"amount":  "12.5",
		"active":  "true",
		"count":   3,
		"when":    "2024-03-05T10:20:30+01:00",
		"payload": `{"a":[1,2]}`,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 12.5, output["amount"])
	assert.Equal(t, true, output["active"])
	assert.Equal(t, "3", output["count"])
	assert.Equal(t, "2024-03-05T09:20:30Z", output["when"])
	assert.Equal(t, map[string]any{"a": []any{1.0, 2.0}}, output["payload"])
	assert.NotContains(t, output, "absent")
}

func TestTransformer_ConvertFailure(t *testing.T) {
	_, err := runTransformer(t, models.OperationConvert, models.TransformerConfig{
		Conversions: []models.Conversion{{Field: "amount", Type: "number"}},
	}, map[string]any{"amount": "twelve"}, nil)

	assert.True(t, recovery.IsValidationError(err))
}

func TestTransformer_Function(t *testing.T) {
	output, err := runTransformer(t, models.OperationFunction, models.TransformerConfig{
		Functions: []models.FunctionCall{
			{Field: "name", FunctionID: "string.upper"},
			{Field: "created", FunctionID: "date.format", Params: map[string]any{"format": "yyyy-MM-dd"}, Target: "day"},
		},
	}, map[string]any{"name": "ana", "created": "2024-03-05T10:20:30Z"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ANA", output["name"])
	assert.Equal(t, "2024-03-05", output["day"])

	_, err = runTransformer(t, models.OperationFunction, models.TransformerConfig{
		Functions: []models.FunctionCall{{Field: "name", FunctionID: "nope.nothing"}},
	}, map[string]any{"name": "ana"}, nil)
	assert.True(t, recovery.IsValidationError(err))
}

func TestTransformer_UnknownOperation(t *testing.T) {
	_, err := runTransformer(t, "explode", models.TransformerConfig{}, map[string]any{}, nil)

	assert.True(t, recovery.IsConfigurationError(err))
}
