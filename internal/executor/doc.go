// Package executor runs a single notebook inside a provisioned environment.
//
// The notebook tool is started through `sh -c` with the environment
// activated and every inherited variable cleared, so a notebook can only
// see the interpreter and packages of its own clone. A non-zero exit
// status is the only failure condition.
package executor
