package multivec

import "github.com/santhosh-tekuri/jsonschema/v5"

const tilesetSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tile_size", "max_pos", "resolutions", "chromSizes", "shape"],
  "properties": {
    "tile_size": {"type": "integer", "minimum": 1},
    "max_pos": {"type": "array", "minItems": 1, "items": {"type": "number", "minimum": 0}},
    "min_pos": {"type": "array", "minItems": 1, "items": {"type": "number"}},
    "max_zoom": {"type": "integer", "minimum": 0},
    "max_width": {"type": "number", "exclusiveMinimum": 0},
    "resolutions": {"type": "array", "minItems": 1, "items": {"type": "integer", "minimum": 1}},
    "chromSizes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "array",
        "minItems": 2,
        "items": [{"type": "string", "minLength": 1}, {"type": "integer", "minimum": 1}]
      }
    },
    "shape": {"type": "array", "minItems": 2, "items": {"type": "integer", "minimum": 0}}
  }
}`

var tilesetSchema = jsonschema.MustCompileString("tileset_info.schema.json", tilesetSchemaJSON)
