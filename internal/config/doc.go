// Package config loads the board daemon's YAML configuration.
//
// Values may reference environment variables as ${VAR}; a .env file next to
// the process is loaded first when present.
package config
