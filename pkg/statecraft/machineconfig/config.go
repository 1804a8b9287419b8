// Package machineconfig loads a machine's declarative configuration (the
// RawConfig Compile expects) and the ambient RuntimeConfig (db, archival,
// lock, observability settings) from YAML or JSON, with environment
// variable overrides.
package machineconfig

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/statecraftio/statecraft/pkg/statecraft"
)

// Load reads a machine definition file (YAML or JSON, detected by
// extension; YAML is the default) into a RawConfig ready for
// statecraft.Compile.
func Load(path string) (statecraft.RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("machineconfig: read %s: %w", path, err)
	}
	var raw statecraft.RawConfig
	if strings.HasSuffix(path, ".json") {
		if err := yaml.Unmarshal(data, &raw); err != nil { // yaml.v3 parses JSON too (it's a YAML superset)
			return nil, fmt.Errorf("machineconfig: parse %s: %w", path, err)
		}
		return normalizeMap(raw), nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("machineconfig: parse %s: %w", path, err)
	}
	return normalizeMap(raw), nil
}

// normalizeMap recursively converts yaml.v3's map[string]interface{} tree
// (which it already produces for mapping nodes, unlike yaml.v2's
// map[interface{}]interface{}) into the exact RawConfig alias shape
// Compile expects, so callers never have to type-assert differently
// depending on loader.
func normalizeMap(v any) statecraft.RawConfig {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(statecraft.RawConfig, len(m))
	for k, val := range m {
		out[k] = normalizeValue(val)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// LoadWithEnv loads a RuntimeConfig-shaped struct from path and then
// applies environment overrides under prefix (default "STATECRAFT").
func LoadWithEnv(path string, prefix string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("machineconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("machineconfig: parse %s: %w", path, err)
	}
	return ApplyEnvOverrides(prefix, target)
}

// ApplyEnvOverrides walks target's struct fields by reflection, setting any
// whose PREFIX_FIELDNAME environment variable is set.
func ApplyEnvOverrides(prefix string, target any) error {
	if prefix == "" {
		prefix = "STATECRAFT"
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("machineconfig: target must be a pointer to a struct")
	}
	return applyEnvToStruct(prefix, val.Elem())
}

func applyEnvToStruct(prefix string, val reflect.Value) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !field.CanSet() {
			continue
		}
		envKey := strings.ReplaceAll(prefix+"_"+strings.ToUpper(fieldType.Name), "-", "_")

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(envKey, field); err != nil {
				return err
			}
			continue
		}
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := applyEnvToStruct(envKey, field.Elem()); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("machineconfig: field %s from env %s: %w", fieldType.Name, envKey, err)
		}
	}
	return nil
}

func setFieldFromEnv(field reflect.Value, envValue string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(envValue, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(envValue)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(envValue, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		parts := strings.Split(envValue, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, part := range parts {
			slice.Index(i).SetString(strings.TrimSpace(part))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
