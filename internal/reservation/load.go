package reservation

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var definitionSchema string

var rangeSchema = func() string {
	// The single-range schema reuses the definition under "definitions".
	var doc map[string]any
	if err := json.Unmarshal([]byte(definitionSchema), &doc); err != nil {
		panic(err)
	}
	defs := doc["definitions"].(map[string]any)
	r := defs["range"].(map[string]any)
	r["$schema"] = doc["$schema"]
	out, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return string(out)
}()

// SchemaError lists JSON Schema violations in a reservation document.
type SchemaError struct {
	Source string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, strings.Join(e.Issues, "; "))
}

func validateDoc(schema, source string, doc any) error {
	res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s: %w", source, err)
	}
	if res.Valid() {
		return nil
	}
	se := &SchemaError{Source: source}
	for _, item := range res.Errors() {
		se.Issues = append(se.Issues, fmt.Sprintf("%s: %s", item.Field(), item.Description()))
	}
	return &Error{Code: ErrorCodeInvalid, Msg: se.Error()}
}

// ParseDefinitions decodes a YAML (or JSON) reservation definition document
// after validating it against the embedded schema.
func ParseDefinitions(source string, data []byte) ([]Range, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalidf("%s: %v", source, err)
	}
	doc, err := toJSONCompatible(doc)
	if err != nil {
		return nil, invalidf("%s: %v", source, err)
	}
	if err := validateDoc(definitionSchema, source, doc); err != nil {
		return nil, err
	}
	var st stateFile
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, invalidf("%s: %v", source, err)
	}
	return st.Reservations, nil
}

// LoadFile reads reservation definitions from path.
func LoadFile(path string) ([]Range, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reservation file: %w", err)
	}
	return ParseDefinitions(path, data)
}

// DecodeRange validates a single JSON-encoded range, as sent by API clients.
func DecodeRange(body []byte) (Range, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Range{}, invalidf("reservation body: %v", err)
	}
	if err := validateDoc(rangeSchema, "reservation body", doc); err != nil {
		return Range{}, err
	}
	var r Range
	if err := json.Unmarshal(body, &r); err != nil {
		return Range{}, invalidf("reservation body: %v", err)
	}
	return r, nil
}

// Apply creates each range in reg. A range already registered with an
// identical definition is skipped, so loading the same file twice is safe.
func Apply(ctx context.Context, reg Registry, ranges []Range) (created int, err error) {
	existing, err := reg.List(ctx)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]Range, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}
	for _, r := range ranges {
		if prev, ok := byName[r.Name]; ok && prev.Equal(r) {
			continue
		}
		if err := reg.Create(ctx, r); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// toJSONCompatible converts YAML-decoded maps into map[string]any so the
// schema validator can walk them.
func toJSONCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			c, err := toJSONCompatible(e)
			if err != nil {
				return nil, err
			}
			t[k] = c
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			c, err := toJSONCompatible(e)
			if err != nil {
				return nil, err
			}
			out[ks] = c
		}
		return out, nil
	case []any:
		for i, e := range t {
			c, err := toJSONCompatible(e)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
		return t, nil
	default:
		return v, nil
	}
}
