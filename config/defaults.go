// Package config provides configuration defaults for the tau application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via tau.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultAddress is the default server address, used by both the server
	// listener and the client.
	// Override via config: listen, or the -a flag.
	DefaultAddress = "localhost:6283"

	// DefaultMaxMessageSize limits a single wire frame to prevent OOM.
	// Frames are newline-delimited JSON; 1 MiB is generous for any
	// reasonable request or result.
	DefaultMaxMessageSize = 1 * 1024 * 1024
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultRetention is the sliding retention window of the memory
	// backend when no explicit window is configured.
	// Override via config: backends[].retention
	DefaultRetention = 60 * time.Second

	// DefaultTextExt is the filename extension of text log files.
	DefaultTextExt = ".csv"
)

// =============================================================================
// Stats Defaults
// =============================================================================

const (
	// DefaultStatsAccuracy is the DDSketch relative accuracy used for
	// percentile calculation (0.01 = 1% error).
	DefaultStatsAccuracy = 0.01
)

// =============================================================================
// Collector Defaults
// =============================================================================

const (
	// DefaultCollectInterval is the polling interval of a collector target
	// when the target does not set its own.
	// Override via config: collect.targets[].interval
	DefaultCollectInterval = 30 * time.Second

	// DefaultSNMPPort is the SNMP agent port.
	DefaultSNMPPort = 161

	// DefaultSNMPTimeout is the timeout for a single SNMP request.
	DefaultSNMPTimeout = 5 * time.Second

	// DefaultSNMPRetries is the number of retry attempts after timeout.
	DefaultSNMPRetries = 2
)
