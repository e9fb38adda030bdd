package store

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kilupskalvis/aliasmig/internal/models"
)

// File names read from a definition directory.
const (
	SettingsFile  = "_settings.json"
	MappingFile   = "_mapping.json"
	TransformFile = "transform.painless"
)

//go:embed definition.schema.json
var definitionSchema []byte

var definitionSchemaLoader = gojsonschema.NewBytesLoader(definitionSchema)

// LoadDefinitionDir reads a definition from dir. At least one of the settings
// and mapping files must exist; the transform script is optional.
func LoadDefinitionDir(dir string) (models.SchemaDefinition, error) {
	var def models.SchemaDefinition

	settings, err := readJSONFile(filepath.Join(dir, SettingsFile))
	if err != nil && !os.IsNotExist(err) {
		return def, fmt.Errorf("reading %s: %w", SettingsFile, err)
	}
	mapping, err := readJSONFile(filepath.Join(dir, MappingFile))
	if err != nil && !os.IsNotExist(err) {
		return def, fmt.Errorf("reading %s: %w", MappingFile, err)
	}
	if settings == nil && mapping == nil {
		return def, fmt.Errorf("no %s or %s in %q", SettingsFile, MappingFile, dir)
	}

	script, err := os.ReadFile(filepath.Join(dir, TransformFile))
	if err != nil && !os.IsNotExist(err) {
		return def, fmt.Errorf("reading %s: %w", TransformFile, err)
	}

	doc := map[string]json.RawMessage{
		"settings": orNull(settings),
		"mappings": orNull(mapping),
	}
	if s := strings.TrimSpace(string(script)); s != "" {
		encoded, _ := json.Marshal(s)
		doc["transform_script"] = encoded
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return def, err
	}

	if err := ValidateDefinition(data); err != nil {
		return def, fmt.Errorf("invalid definition in %q: %w", dir, err)
	}
	if err := json.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("decoding definition: %w", err)
	}
	return def, nil
}

// ValidateDefinition checks a JSON encoded definition against the embedded
// JSON Schema and joins every violation into the returned error.
func ValidateDefinition(data []byte) error {
	result, err := gojsonschema.Validate(definitionSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("running schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []error
	for _, desc := range result.Errors() {
		errs = append(errs, errors.New(desc.String()))
	}
	return errors.Join(errs...)
}

// readJSONFile returns nil and the os error if path does not exist.
func readJSONFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON in %q", path)
	}
	return data, nil
}

func orNull(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage("null")
	}
	return raw
}
