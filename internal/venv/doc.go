// Package venv provisions isolated Python environments.
//
// A base environment holding the requested packages is created once per
// package set and then cloned for every notebook, so each run starts from an
// identical, untouched interpreter. The actual work is delegated to
// `python -m venv`, pip and virtualenv-clone.
package venv
