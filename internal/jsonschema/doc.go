// Package jsonschema builds the small JSON Schema documents advertised to a
// language model: tool argument schemas derived from Go structs by
// reflection ([GenerateJSONSchema]) and hand-built schemas for constrained
// outputs such as a routing enum ([StringEnum], [Object]).
package jsonschema
