package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// batchSchema describes the JSON body accepted by the ingestion endpoint.
const batchSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["item_id", "concept_id", "difficulty"],
        "properties": {
          "item_id":     {"type": "string", "minLength": 1},
          "concept_id":  {"type": "string", "minLength": 1},
          "difficulty":  {"type": "number", "minimum": 0, "maximum": 1},
          "kind":        {"type": "string", "enum": ["", "open", "mcq", "true_false", "fill_blank"]},
          "payload_ref": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  }
}`

var batchSchemaLoader = gojsonschema.NewStringLoader(batchSchema)

// Batch is the JSON envelope of an ingestion request.
type Batch struct {
	Items []Record `json:"items"`
}

// DecodeBatch validates data against the ingestion schema and decodes it.
func DecodeBatch(data []byte) ([]Record, error) {
	result, err := gojsonschema.Validate(batchSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidItem, strings.Join(msgs, "; "))
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return b.Items, nil
}
