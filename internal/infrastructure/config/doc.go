// Package config handles loading and validating Catspaw configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CATSPAW_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Durations are written in Go syntax ("500ms", "2s") and decoded
// directly into time.Duration fields.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.AVR.Host)
package config
