// Package output renders session task results for the CLI.
//
// ConsoleFormatter prints colored lines with a live download indicator;
// JSONFormatter collects results and writes a single document on Flush.
package output
