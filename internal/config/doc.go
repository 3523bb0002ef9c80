// Package config provides configuration loading for the switchboard server.
// Values come from defaults, an optional YAML file and environment
// variables, and are validated before use.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML file (SWITCHBOARD_CONFIG_FILE, switchboard.yaml or configs/switchboard.yaml)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern SWITCHBOARD_<SECTION>_<FIELD>:
//
//	SWITCHBOARD_SERVER_ADDR=:9090
//	SWITCHBOARD_LOGGING_LEVEL=debug
//	SWITCHBOARD_WEBSOCKET_MAX_MESSAGE_SIZE=65536
//	SWITCHBOARD_API_PRETTY_JSON=true
//	SWITCHBOARD_RATE_LIMIT_ENABLED=true
//	SWITCHBOARD_METRICS_PATH=/internal/metrics
//	SWITCHBOARD_TELEMETRY_TRACE_EXPORTER=stdout
//
// # Validation
//
// Validate runs go-playground/validator struct tags over the whole tree and
// reports every offending field in one error:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
