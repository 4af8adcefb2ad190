// Package config handles loading and validating Inkframe configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files (chosen by extension)
//   - Overriding with INKFRAME_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GetWakeInterval())
package config
