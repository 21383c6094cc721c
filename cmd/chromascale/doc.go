// Package main hosts the ChromaScale CLI entrypoint and command graph.
//
// The Cobra command tree runs the watch pipeline in the foreground, drives the
// systemd user service, tails logs, and edits or validates configuration.
// Command handlers stay thin; behavior lives in the internal packages.
package main
