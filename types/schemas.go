package types

// Request body schemas of the write and grammar endpoints, checked by
// middlewares.Validator before a handler runs.
const (
	ProfileRequestSchema = `{
		"type": "object",
		"required": ["name"],
		"additionalProperties": false,
		"properties": {
			"id": {"type": "string", "minLength": 1, "maxLength": 64},
			"name": {"type": "string", "minLength": 1},
			"email": {"type": "string", "format": "email"},
			"features": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name"],
					"additionalProperties": false,
					"properties": {
						"name": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_-]*$"},
						"str_value": {"type": "string"},
						"num_value": {"type": "number"},
						"bool_value": {"type": "boolean"},
						"time": {"type": "number"},
						"lng": {"type": "number", "minimum": -180, "maximum": 180},
						"lat": {"type": "number", "minimum": -90, "maximum": 90}
					}
				}
			}
		}
	}`

	ParseRequestSchema = `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string"},
			"startRule": {"type": "string", "enum": ["query", "request"]}
		}
	}`

	SegmentRequestSchema = `{
		"type": "object",
		"required": ["name", "query"],
		"additionalProperties": false,
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"query": {"type": "string", "minLength": 1}
		}
	}`
)
