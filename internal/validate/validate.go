package validate

import (
	"encoding/json"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateJSON validates an object (already converted to JSON) with the given schema.
func ValidateJSON(obj any, schemaSrc string) error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("mem://schema.json", bytesReader(schemaSrc)); err != nil {
		return err
	}
	sch, err := c.Compile("mem://schema.json")
	if err != nil {
		return err
	}
	return sch.Validate(obj)
}

// ValidateConfigMap validates a generic map decoded from the TOML config file.
func ValidateConfigMap(m map[string]any) error {
	obj, err := normalize(m)
	if err != nil {
		return err
	}
	return ValidateJSON(obj, configSchema)
}

// ValidateDisableRecord validates a decoded disable lock record.
func ValidateDisableRecord(obj any) error {
	return ValidateJSON(obj, disableRecordSchema)
}

// normalize round-trips through encoding/json so TOML native types
// (int64, local dates) reach the validator as plain JSON values.
func normalize(m map[string]any) (any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

const configSchema = `{
  "$schema":"https://json-schema.org/draft/2020-12/schema",
  "type":"object",
  "additionalProperties":false,
  "properties":{
    "layout":{"type":"string","enum":["auto","v2","v3"]},
    "agent_binary":{"type":"string","minLength":1},
    "open_files":{"type":"integer","minimum":0},
    "paths":{
      "type":"object",
      "additionalProperties":false,
      "properties":{
        "disable_lock":{"type":"string"},
        "run_lock":{"type":"string"},
        "pid_file":{"type":"string"},
        "lastrun_report":{"type":"string"},
        "resource_file":{"type":"string"},
        "mutex_lock":{"type":"string"}
      }
    },
    "watch":{
      "type":"object",
      "additionalProperties":false,
      "properties":{
        "interval":{"type":"string"},
        "listen":{"type":"string"},
        "nats":{
          "type":"object",
          "properties":{"url":{"type":"string"},"subject":{"type":"string"}}
        },
        "mqtt":{
          "type":"object",
          "properties":{"broker":{"type":"string"},"topic":{"type":"string"},"client_id":{"type":"string"}}
        }
      }
    }
  }
}`

const disableRecordSchema = `{
  "$schema":"https://json-schema.org/draft/2020-12/schema",
  "type":"object",
  "required":["disabled_message"],
  "properties":{
    "disabled_message":{"type":"string"},
    "disabled_at":{"type":"string"}
  }
}`

// Helper to provide io.ReadSeeker from string for jsonschema compiler
func bytesReader(s string) *bytesReaderT { return &bytesReaderT{b: []byte(s)} }

type bytesReaderT struct {
	b []byte
	i int64
}

func (r *bytesReaderT) Read(p []byte) (int, error) {
	n := copy(p, r.b[r.i:])
	r.i += int64(n)
	if r.i >= int64(len(r.b)) {
		return n, io.EOF
	}
	return n, nil
}

func (r *bytesReaderT) Seek(off int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		r.i = off
	case io.SeekCurrent:
		r.i += off
	case io.SeekEnd:
		r.i = int64(len(r.b)) + off
	}
	if r.i < 0 {
		r.i = 0
	}
	if r.i > int64(len(r.b)) {
		r.i = int64(len(r.b))
	}
	return r.i, nil
}
