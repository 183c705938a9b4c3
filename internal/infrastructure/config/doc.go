// Package config handles loading and validating the Fastcon bridge
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The mesh key and JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Anyone holding the mesh key can control every light on the mesh
//
// Usage:
//
//	cfg, err := config.Load("configs/fastcon.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	key, _ := cfg.Fastcon.Key()
package config
