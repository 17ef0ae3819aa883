package export

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func compiledSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		var doc any
		if err := json.Unmarshal(schemaJSON, &doc); err != nil {
			panic(fmt.Sprintf("export: embedded schema is not valid JSON: %v", err))
		}
		if err := c.AddResource("mem://snapshot.json", doc); err != nil {
			panic(fmt.Sprintf("export: add schema resource: %v", err))
		}
		s, err := c.Compile("mem://snapshot.json")
		if err != nil {
			panic(fmt.Sprintf("export: compile schema: %v", err))
		}
		schema = s
	})
	return schema
}

// Validate checks raw against the snapshot schema and returns a list of
// human-readable problems. An empty list means the snapshot is importable.
// Validation is strictly a pre-check gate; it never mutates anything.
func Validate(raw []byte) []string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []string{fmt.Sprintf("snapshot is not valid JSON: %v", err)}
	}

	err := compiledSchema().Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var problems []string
	flattenCauses(ve, &problems)
	return problems
}

func flattenCauses(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		p := message.NewPrinter(language.English)
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(p)))
		return
	}
	for _, cause := range ve.Causes {
		flattenCauses(cause, out)
	}
}

// Decode parses raw into a Snapshot. Callers run Validate first; Decode
// only guards against malformed JSON.
func Decode(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
