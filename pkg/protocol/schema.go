package protocol

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const eventSchemaURL = "mem://protocol/event.schema.json"

// eventSchemaJSON constrains the fields the bridge depends on. Unknown
// events and extra fields are allowed so new transport features do not break
// existing calls.
const eventSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["event"],
  "properties": {
    "event": {"type": "string", "minLength": 1},
    "streamSid": {"type": "string"},
    "sequenceNumber": {"type": "string"}
  },
  "allOf": [
    {
      "if": {"properties": {"event": {"const": "start"}}},
      "then": {
        "required": ["start"],
        "properties": {
          "start": {
            "type": "object",
            "required": ["callSid", "streamSid"],
            "properties": {
              "callSid": {"type": "string", "minLength": 1},
              "streamSid": {"type": "string", "minLength": 1},
              "mediaFormat": {
                "type": "object",
                "properties": {
                  "encoding": {"type": "string"},
                  "sampleRate": {"type": "integer"},
                  "channels": {"type": "integer"}
                }
              }
            }
          }
        }
      }
    },
    {
      "if": {"properties": {"event": {"const": "media"}}},
      "then": {
        "required": ["media"],
        "properties": {
          "media": {
            "type": "object",
            "required": ["payload"],
            "properties": {"payload": {"type": "string"}}
          }
        }
      }
    },
    {
      "if": {"properties": {"event": {"const": "mark"}}},
      "then": {
        "required": ["mark"],
        "properties": {
          "mark": {
            "type": "object",
            "required": ["name"],
            "properties": {"name": {"type": "string"}}
          }
        }
      }
    },
    {
      "if": {"properties": {"event": {"const": "stop"}}},
      "then": {
        "properties": {
          "stop": {
            "type": "object",
            "properties": {"callSid": {"type": "string"}}
          }
        }
      }
    }
  ]
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

// eventSchema compiles the embedded schema once. The schema is a constant,
// so a compile failure is a programming error.
func eventSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		schema = jsonschema.MustCompileString(eventSchemaURL, eventSchemaJSON)
	})
	return schema
}
