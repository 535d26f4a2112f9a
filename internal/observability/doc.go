// Package observability records what the engine did and derives metrics and
// alerts from it. Domain events go to an append-only JSON Lines file; the
// operational debug log is a separate slog JSON file.
package observability
