package loader

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateConfig checks a resolved actor's merged config against its
// manifest's config_schema, when one is declared (§6.5's config_schema
// field has no validation behavior specified by name, but a declared
// schema with nothing checking it against would be dead data).
func ValidateConfig(actor *ResolvedActor) error {
	if actor.Manifest == nil || len(actor.Manifest.ConfigSchema) == 0 {
		return nil
	}

	schemaJSON, err := json.Marshal(actor.Manifest.ConfigSchema)
	if err != nil {
		return fmt.Errorf("loader: marshal config_schema for %s: %w", actor.LogicalName, err)
	}

	compiler := jsonschema.NewCompiler()
	schemaURL := "wasmind://" + actor.LogicalName + "/config_schema.json"
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("loader: invalid config_schema for %s: %w", actor.LogicalName, err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("loader: compile config_schema for %s: %w", actor.LogicalName, err)
	}

	configJSON, err := json.Marshal(actor.Config)
	if err != nil {
		return fmt.Errorf("loader: marshal config for %s: %w", actor.LogicalName, err)
	}
	var configValue any
	if err := json.Unmarshal(configJSON, &configValue); err != nil {
		return fmt.Errorf("loader: unmarshal config for %s: %w", actor.LogicalName, err)
	}

	if err := schema.Validate(configValue); err != nil {
		return &LoaderError{Kind: InvalidManifest, LogicalName: actor.LogicalName, Detail: err.Error()}
	}
	return nil
}

// ValidateAll validates every resolved actor's config against its schema,
// returning the first failure.
func ValidateAll(resolved map[string]*ResolvedActor) error {
	for _, actor := range resolved {
		if err := ValidateConfig(actor); err != nil {
			return err
		}
	}
	return nil
}
