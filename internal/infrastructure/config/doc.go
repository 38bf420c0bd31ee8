// Package config handles loading and validating SHSF hub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SHSF_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT credentials and the InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Hub.Namespace)
package config
