// Package config handles loading and validating the gateway's configuration.
//
// This package manages:
//   - Struct-tag defaults via github.com/mcuadros/go-defaults
//   - Loading configuration from YAML files
//   - Overriding with environment variables (BTGW_SECTION_KEY)
//   - Validation of connector and per-adapter timing parameters
//
// Usage:
//
//	cfg, err := config.Load("configs/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Connector.Host)
package config
