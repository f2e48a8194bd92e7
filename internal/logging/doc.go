// Package logging configures slog for hybridrank.
//
// By default logs are human-readable text on stderr so stdout stays free for
// ranked output. With --debug, JSON logs are also written to a rotating file
// under ~/.hybridrank/logs/, which `hybridrank logs` can tail and filter.
package logging
