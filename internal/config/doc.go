// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the vlabel runtime configuration.
//
// Precedence is ENV > YAML file > defaults. The YAML file is decoded strictly:
// unknown keys fail the load instead of being silently ignored.
package config
