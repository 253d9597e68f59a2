package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// budgetSchema is the JSON schema the declarative budget section must
// satisfy. It catches shape errors (wrong types, unknown tier keys) before
// the semantic validation in Validate sees the values.
const budgetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "base": { "$ref": "#/$defs/tier" },
    "override": { "$ref": "#/$defs/tier" }
  },
  "additionalProperties": false,
  "$defs": {
    "tier": {
      "type": ["object", "null"],
      "properties": {
        "subjects": {
          "type": ["object", "null"],
          "additionalProperties": {
            "type": ["object", "null"],
            "properties": {
              "maxDuration": { "type": ["number", "null"] },
              "maxRenders": { "type": ["number", "null"] }
            },
            "additionalProperties": false
          }
        },
        "minFps": { "type": ["number", "null"] },
        "maxHeapGrowthPct": { "type": ["number", "null"] },
        "vitals": {
          "type": ["object", "null"],
          "properties": {
            "lcp": { "type": ["number", "null"] },
            "cls": { "type": ["number", "null"] },
            "fcp": { "type": ["number", "null"] },
            "ttfb": { "type": ["number", "null"] },
            "inp": { "type": ["number", "null"] }
          },
          "additionalProperties": false
        },
        "audit": {
          "type": ["object", "null"],
          "properties": {
            "performance": { "type": ["number", "null"] },
            "accessibility": { "type": ["number", "null"] },
            "bestPractices": { "type": ["number", "null"] },
            "seo": { "type": ["number", "null"] }
          },
          "additionalProperties": false
        }
      },
      "additionalProperties": false
    }
  }
}`

// compiledBudgetSchema is compiled once at init; the schema is a constant,
// so a compile failure is a programming error.
var compiledBudgetSchema = jsonschema.MustCompileString("budget.json", budgetSchema)

// ValidateBudget checks the raw budget document against the schema and
// flattens any violations into one error.
func ValidateBudget(doc interface{}) error {
	// Round-trip through JSON so YAML-decoded values carry JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding budget for validation: %w", err)
	}
	var jsonDoc interface{}
	if err := json.Unmarshal(raw, &jsonDoc); err != nil {
		return fmt.Errorf("decoding budget for validation: %w", err)
	}

	if err := compiledBudgetSchema.Validate(jsonDoc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("budget does not match schema: %s", strings.Join(flatten(ve), "; "))
		}
		return fmt.Errorf("budget does not match schema: %w", err)
	}
	return nil
}

// flatten extracts the leaf messages from a nested validation error.
func flatten(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, err.Message)}
	}
	var out []string
	for _, cause := range err.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}
