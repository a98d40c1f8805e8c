// Package logging provides structured JSON logging with rotation for vecsync.
// By default logs go to stderr only; configuring a file path adds a
// size-rotated log file under ~/.vecsync/logs/ so long-running watch mode
// keeps a durable trail.
package logging
