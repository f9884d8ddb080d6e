// Package config loads and validates the nbiso harness configuration.
//
// Configuration is an explicit value: the harness never consults package-level
// lists of notebooks or packages. A Config is read from a YAML or CUE file,
// overlaid with environment variables and finally with command-line flags by
// the caller.
//
// # File Format
//
// The file lives at the repository root (nbiso.yaml by default):
//
//	package: cirq
//	pre_release_pin: "~=1.0.dev"
//	skip:
//	  - "**/aqt/*.ipynb"
//	  - "examples/advanced/*quantum_utility*"
//	unreleased:
//	  notebooks:
//	    - docs/simulate/noisy_simulation.ipynb
//	packages: [papermill, jupyter, "seaborn~=0.12"]
//	escalate:
//	  - "dev_tools/requirements/**"
//	artifact_name: notebook-outputs
//
// The same structure may be written in CUE (nbiso.cue). CUE files must be
// concrete; constraints that do not resolve to values are rejected. In CUE
// package is a keyword, so the field is written with a quoted label:
//
//	"package":       "cirq"
//	pre_release_pin: "~=1.0.dev"
//	partitions:      4
//
// # Environment
//
//   - NOTEBOOK_PARTITIONS overrides partitions.
//   - NBISO_MINIO_ACCESS_KEY and NBISO_MINIO_SECRET_KEY supply artifact
//     upload credentials, which are never read from the file.
package config
