// Package logging provides opt-in file-based logging with rotation.
// When the --debug flag is set, comprehensive logs are written under the
// cache directory's logs/ subdirectory for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only.
package logging
