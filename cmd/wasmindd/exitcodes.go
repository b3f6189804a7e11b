package main

// Exit codes for the check/status command (§6.6, SPEC_FULL supplement 6).
// Only check consumes these; every other subcommand uses cobra's default
// error handling.
const (
	ExitOK               = 0
	ExitResolverFailure  = 1
	ExitBuildFailure     = 2
	ExitNoStartingActors = 3
)
