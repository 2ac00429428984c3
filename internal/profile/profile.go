// Package profile loads hedge profile documents: the YAML file that
// declares which positions the daemon hedges and with what settings.
// Documents are schema-validated before anything acts on them, so a
// half-edited file never reaches the hedging core.
package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"hedgerd/internal/hedger"
	"hedgerd/internal/instrument"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var ErrInvalidProfile = errors.New("invalid hedge profile")

// Venue selects which market-data source backs a profile's volatility
// calculations. Orders always route through the brokerage gateway.
type Venue string

const (
	VenueIBWeb   Venue = "ibweb"
	VenueBinance Venue = "binance"
)

// Definition is one hedge profile entry, keyed by name in the file.
type Definition struct {
	Key         string  `yaml:"key" json:"key"`
	TargetDelta float64 `yaml:"target_delta" json:"target_delta"`
	Threshold   float64 `yaml:"threshold" json:"threshold"`
	MaxOrderQty int64   `yaml:"max_order_qty" json:"max_order_qty"`
	Interval    string  `yaml:"interval" json:"interval"`
	Venue       Venue   `yaml:"venue" json:"venue"`
	Autostart   bool    `yaml:"autostart" json:"autostart"`
}

// Target converts the document entry into hedger configuration.
func (d Definition) Target() (hedger.Target, error) {
	t := hedger.Target{
		Key:         d.Key,
		TargetDelta: d.TargetDelta,
		Threshold:   d.Threshold,
		MaxOrderQty: d.MaxOrderQty,
	}
	if d.Interval != "" {
		interval, err := time.ParseDuration(d.Interval)
		if err != nil {
			return hedger.Target{}, fmt.Errorf("%w: interval %q: %v", ErrInvalidProfile, d.Interval, err)
		}
		t.Interval = interval
	}
	return t, nil
}

// FileConfig maps the document root.
type FileConfig struct {
	Profiles map[string]Definition `yaml:"profiles" json:"profiles"`
}

// Snapshot is a read-only view of a loaded document.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Definition
}

// Names returns profile names in stable order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const schemaJSON = `{
  "type": "object",
  "required": ["profiles"],
  "properties": {
    "profiles": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["key", "threshold", "max_order_qty"],
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "target_delta": {"type": "number"},
          "threshold": {"type": "number", "minimum": 0},
          "max_order_qty": {"type": "integer", "minimum": 1},
          "interval": {"type": "string"},
          "venue": {"enum": ["", "ibweb", "binance"]},
          "autostart": {"type": "boolean"}
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profile.schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("profile.schema.json")
}

// Load reads, validates and normalizes a profile document.
func Load(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read hedge profile: %w", err)
	}
	return Parse(raw)
}

// Parse validates a raw document against the embedded schema, then
// decodes it strictly: unknown fields are errors.
func Parse(raw []byte) (FileConfig, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return FileConfig{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if err := compiledSchema.Validate(normalizeForSchema(doc)); err != nil {
		return FileConfig{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	for name, def := range cfg.Profiles {
		if _, err := instrument.ParseKey(def.Key); err != nil {
			return FileConfig{}, fmt.Errorf("%w: profile %s: %v", ErrInvalidProfile, name, err)
		}
		if _, err := def.Target(); err != nil {
			return FileConfig{}, fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return cfg, nil
}

// normalizeForSchema converts yaml.v3's decoded tree into the shapes
// the jsonschema validator expects (json.Number-free, string keys).
func normalizeForSchema(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeForSchema(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeForSchema(child)
		}
		return out
	case int:
		return json.Number(fmt.Sprintf("%d", val))
	case int64:
		return json.Number(fmt.Sprintf("%d", val))
	case float64:
		return json.Number(fmt.Sprintf("%g", val))
	default:
		return v
	}
}
