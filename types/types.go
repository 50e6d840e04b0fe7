// Package types holds the shapes shared by the HTTP API and its OpenAPI document.
package types

import (
	"encoding/json"

	"github.com/TwiN/deepmerge"
)

const definitions = `
{
	"components": {
		"responses": {
			"BadRequest": {
				"description": "The request is invalid",
				"content": {
					"application/json": {
						"schema": {"$ref": "#/components/schemas/Error"},
						"example": {
							"status": "Bad Request",
							"error": "Expected \"loc\", \"time\" or \"value\" but \"u\" found.",
							"details": ["offset: 3", "line: 1", "column: 4"]
						}
					}
				}
			},
			"Unauthorized": {
				"description": "The request lacks valid authentication credentials",
				"content": {
					"application/json": {
						"schema": {"$ref": "#/components/schemas/Error"},
						"example": {"status": "Unauthorized", "error": "invalid authentication token"}
					}
				}
			},
			"Forbidden": {
				"description": "Insufficient permissions to a resource or action",
				"content": {
					"application/json": {
						"schema": {"$ref": "#/components/schemas/Error"},
						"example": {"status": "Forbidden", "error": "you are not allowed to perform this action"}
					}
				}
			},
			"NotFound": {
				"description": "The specified resource was not found",
				"content": {
					"application/json": {
						"schema": {"$ref": "#/components/schemas/Error"},
						"example": {"status": "Not Found", "error": "the requested resource was not found"}
					}
				}
			},
			"Conflict": {
				"description": "The resource already exists",
				"content": {
					"application/json": {
						"schema": {"$ref": "#/components/schemas/Error"},
						"example": {"status": "Conflict", "error": "segment 4f2a already exists"}
					}
				}
			},
			"ServerError": {
				"description": "There was an unexpected server error",
				"content": {
					"application/json": {
						"schema": {"$ref": "#/components/schemas/Error"},
						"example": {"status": "Internal Server Error", "error": "encountered an unexpected server error"}
					}
				}
			}
		},
		"schemas": {
			"Error": {
				"type": "object",
				"properties": {
					"status": {"type": "string"},
					"error": {"type": "string"},
					"details": {"type": "array", "items": {"type": "string"}}
				}
			},
			"Meta": {
				"type": "object",
				"properties": {
					"next": {"type": "string", "description": "Cursor of the next page, absent on the last page"},
					"count": {"type": "integer"},
					"match": {"type": "boolean"}
				}
			},
			"TargetingQuery": {
				"type": "string",
				"description": "Targeting expression. Features are name[key op operand ...] with keys value, loc and time; ! inverts a feature; && binds tighter than ||.",
				"example": "country[value=\"fr\"] && (age[value>=18] || vip![value=false])"
			},
			"LuceneSearchQuery": {
				"type": "string",
				"description": "Lucene-style search over profile fields. Supports field:value, wildcards (*,?), AND, OR, NOT, ranges and quoted phrases.",
				"example": "name:john* AND email:*@example.com"
			},
			"Tree": {
				"description": "A targeting tree: a feature object or a logical object with a single $and or $or key",
				"oneOf": [
					{
						"type": "object",
						"required": ["name"],
						"properties": {
							"name": {"type": "string"},
							"inverted": {"type": ["boolean", "null"]},
							"value": {"$ref": "#/components/schemas/Test"},
							"loc": {"$ref": "#/components/schemas/Test"},
							"time": {"$ref": "#/components/schemas/Test"}
						}
					},
					{
						"type": "object",
						"properties": {
							"$and": {"type": "array", "items": {"$ref": "#/components/schemas/Tree"}},
							"$or": {"type": "array", "items": {"$ref": "#/components/schemas/Tree"}}
						}
					}
				]
			},
			"Test": {
				"type": "object",
				"required": ["operator", "operand"],
				"properties": {
					"operator": {"type": "string", "enum": ["=", ">", "<", ">=", "<="]},
					"operand": {
						"oneOf": [
							{"type": "string"},
							{"type": "number"},
							{"type": "boolean"},
							{
								"type": "object",
								"required": ["lng", "lat", "rad"],
								"properties": {"lng": {"type": "number"}, "lat": {"type": "number"}, "rad": {"type": "number"}}
							}
						]
					}
				}
			},
			"Feature": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string"},
					"str_value": {"type": "string"},
					"num_value": {"type": "number"},
					"bool_value": {"type": "boolean"},
					"time": {"type": "number", "description": "Unix seconds"},
					"lng": {"type": "number"},
					"lat": {"type": "number"}
				}
			},
			"Profile": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"name": {"type": "string"},
					"email": {"type": "string"},
					"created_at": {"type": "string", "format": "date-time"},
					"features": {"type": "array", "items": {"$ref": "#/components/schemas/Feature"}}
				}
			},
			"Segment": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"name": {"type": "string"},
					"query": {"$ref": "#/components/schemas/TargetingQuery"},
					"created_at": {"type": "string", "format": "date-time"}
				}
			}
		}
	}
}
`

type ErrorResponse struct {
	Status  string   `json:"status"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// Meta carries what a response says about its data rather than the data itself.
type Meta struct {
	Next  string `json:"next,omitempty"`
	Count *int64 `json:"count,omitempty"`
	Match *bool  `json:"match,omitempty"`
}

type ListResponse[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

type MetaResponse struct {
	Meta Meta `json:"meta"`
}

func GetOpenAPIDefinitions() ([]byte, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(definitions), &data); err != nil {
		return nil, err
	}
	return []byte(definitions), nil
}

// MergeOpenAPIDefinitions adds the shared components to an OpenAPI document.
func MergeOpenAPIDefinitions(inputDefinition []byte) ([]byte, error) {
	def, err := GetOpenAPIDefinitions()
	if err != nil {
		return nil, err
	}

	combined, err := deepmerge.JSON(inputDefinition, def)
	if err != nil {
		return nil, err
	}

	return combined, nil
}
