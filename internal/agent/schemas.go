package agent

import (
	"github.com/invopop/jsonschema"

	"basegraph.app/concierge/common/llm"
)

var (
	followUpsSchema = llm.GenerateSchema[followUpsResponse]()
	briefSchema     = llm.GenerateSchema[Brief]()
)

// classificationSchema pins the category property to the configured names.
func classificationSchema(categories []string) any {
	schema, ok := llm.GenerateSchema[Classification]().(*jsonschema.Schema)
	if !ok || schema.Properties == nil {
		return llm.GenerateSchema[Classification]()
	}
	if prop, found := schema.Properties.Get("category"); found && len(categories) > 0 {
		prop.Enum = make([]any, 0, len(categories))
		for _, c := range categories {
			prop.Enum = append(prop.Enum, c)
		}
	}
	return schema
}

// extractionSchema asks for one string property per required field name.
// Absent values come back as empty strings.
func extractionSchema(fields []string) any {
	props := jsonschema.NewProperties()
	required := make([]string, 0, len(fields))
	for _, name := range fields {
		if _, exists := props.Get(name); exists {
			continue
		}
		props.Set(name, &jsonschema.Schema{
			Type:        "string",
			Description: "Value of " + name + " as stated by the reporter, or empty",
		})
		required = append(required, name)
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}
