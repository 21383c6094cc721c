// Package preflight provides readiness checks for the filesystem paths and
// external binaries ChromaScale depends on.
//
// The CLI "check" command runs RunAll and CheckSystemDeps and prints a table.
// The daemon does not call these; it fails on the first real error instead.
package preflight
