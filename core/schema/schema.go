// Package schema validates message payloads against JSON-Schema-compatible
// definitions. Results are accumulated, never fail-fast: a single Validate call
// reports every missing property and every violated constraint.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Error is a single schema violation at a JSON pointer path.
type Error struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Result reports all violations found for one payload.
type Result struct {
	Missing []string `json:"missing"`
	Errors  []Error  `json:"errors"`
}

func (r Result) Valid() bool { return len(r.Missing) == 0 && len(r.Errors) == 0 }

// Validator checks a payload and returns every violation.
type Validator interface {
	Validate(payload map[string]any) Result
}

// Func adapts a plain function to a Validator.
type Func func(payload map[string]any) Result

func (f Func) Validate(payload map[string]any) Result { return f(payload) }

// JSON is a compiled JSON Schema (draft 2020-12).
type JSON struct {
	name   string
	schema *jsonschema.Schema
}

func (j *JSON) Name() string { return j.name }

// Compile compiles src under name. name only needs to be unique per schema; it
// becomes part of the schema resource URL.
func Compile(name string, src string) (*JSON, error) {
	if name == "" {
		return nil, errors.New("schema name is required")
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://esgo.schemas.local/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("schema %s load failed: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
	}
	return &JSON{name: name, schema: compiled}, nil
}

func MustCompile(name string, src string) *JSON {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

func (j *JSON) Validate(payload map[string]any) (res Result) {
	doc, err := normalize(payload)
	if err != nil {
		res.Errors = append(res.Errors, Error{Message: err.Error(), Path: ""})
		return
	}

	err = j.schema.Validate(doc)
	if err == nil {
		return
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		res.Errors = append(res.Errors, Error{Message: err.Error(), Path: ""})
		return
	}
	collect(ve, &res)
	return
}

var quoted = regexp.MustCompile(`'([^']*)'`)

// collect walks the cause tree down to its leaves. Leaves raised by the
// "required" keyword become Missing entries, all others become Errors.
func collect(ve *jsonschema.ValidationError, res *Result) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collect(c, res)
		}
		return
	}

	if strings.HasSuffix(ve.KeywordLocation, "/required") {
		for _, m := range quoted.FindAllStringSubmatch(ve.Message, -1) {
			res.Missing = append(res.Missing, joinPointer(ve.InstanceLocation, m[1]))
		}
		return
	}

	res.Errors = append(res.Errors, Error{Message: ve.Message, Path: ve.InstanceLocation})
}

func joinPointer(base, prop string) string {
	if base == "" {
		return prop
	}
	return strings.TrimPrefix(base, "/") + "/" + prop
}

// normalize turns Go values (ints, structs, typed maps) into the generic JSON
// document model the validator understands.
func normalize(payload map[string]any) (any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON encodable: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
