// Package config loads and validates factflow application configuration.
//
// Configuration comes from three layers, later winning: built-in defaults,
// an optional JSON file, and FACTFLOW_* environment variables. The result is
// validated before use, so a Config obtained from Load is always consistent.
package config
