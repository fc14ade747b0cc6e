// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Schema returns the embedded CUE schema.
func Schema() []byte { return schemaSource }

// Validate checks a raw config document against the #Config definition.
func Validate(data []byte, format Format) error {
	var doc map[string]any
	var err error
	if format == TOML {
		err = toml.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return fmt.Errorf("cannot unmarshal %s config: %w", format, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schemaVal := ctx.CompileBytes(schemaSource)
	if schemaVal.Err() != nil {
		return fmt.Errorf("compile schema: %w", schemaVal.Err())
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))

	configVal := ctx.Encode(doc)
	if configVal.Err() != nil {
		return fmt.Errorf("encode config: %w", configVal.Err())
	}

	// Merge values with schema
	final := def.Unify(configVal)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
