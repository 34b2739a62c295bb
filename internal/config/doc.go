// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config centralizes Airwave's startup configuration: database
// path and tuning, the operator HTTP surface listener, scanner
// concurrency tunables, matcher thresholds, logging, and the vector
// embedding client. Load() layers defaults, an optional YAML file, and
// environment variables via koanf, in that precedence order.
package config
