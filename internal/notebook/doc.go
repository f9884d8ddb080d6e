// Package notebook selects and prepares the notebooks a session executes.
//
// Selection is a pipeline of pure steps over Refs:
//
//	ListAll -> Filter -> Partition -> SelectPartition
//
// ListAll walks the repository, Filter drops skip-listed notebooks, and
// Partition spreads the remainder deterministically over N labels
// ("partition-0" ... "partition-<N-1>") so CI can shard a long suite.
//
// # Rewriting
//
// Before execution a notebook may be rewritten to run faster. For
// docs/foo.ipynb an optional sibling docs/foo.tst holds one rule per line:
//
//	slow_call\((.*)\)->fast_call(\1)
//
// The text left of the first "->" is a regular expression, the rest is its
// replacement. Lines without "->" are ignored. Rules are applied line by line
// to the notebook source and the result is written to a temporary copy; the
// published notebook is never modified.
package notebook
