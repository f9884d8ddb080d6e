// Package shell runs external programs for nbiso.
//
// Every collaborator nbiso drives (git, python, pip, virtualenv-clone and the
// notebook execution tool) is reached through the Runner interface so that
// tests can substitute a scripted fake (see internal/testutil.FakeRunner).
//
// # Environment isolation
//
// A Command with Isolated set starts from an EMPTY environment: only the
// variables listed in Command.Env are visible to the child. Without Isolated,
// Command.Env is appended to the inherited environment.
//
// # Cancellation
//
// Children run in their own process group. When the context is cancelled the
// whole group is killed, so shell pipelines do not outlive the harness.
package shell
