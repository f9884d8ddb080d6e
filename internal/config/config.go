package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// CleanupPolicy decides when per-notebook temporaries are removed.
type CleanupPolicy string

const (
	// CleanupOnSuccess keeps the rewritten notebook and cloned environment of
	// a failed run so they can be inspected.
	CleanupOnSuccess CleanupPolicy = "on-success"
	CleanupAlways    CleanupPolicy = "always"
	CleanupNever     CleanupPolicy = "never"
)

// ValidCleanupPolicies lists the accepted cleanup values.
var ValidCleanupPolicies = []CleanupPolicy{CleanupOnSuccess, CleanupAlways, CleanupNever}

// Default file names looked up at the repository root, in order.
var DefaultFileNames = []string{"nbiso.yaml", "nbiso.yml", "nbiso.cue"}

// Config is the complete harness configuration.
type Config struct {
	// Package is the library under test, e.g. "cirq". Used to build the
	// remediation hint and the default unreleased-feature markers.
	Package string `yaml:"package" json:"package"`

	// DisplayName is the human name of the package. Defaults to Package in
	// title case.
	DisplayName string `yaml:"display_name,omitempty" json:"display_name,omitempty"`

	// PreReleasePin is the version specifier of unreleased builds, e.g. "~=1.0.dev".
	PreReleasePin string `yaml:"pre_release_pin,omitempty" json:"pre_release_pin,omitempty"`

	// Skip holds glob patterns of notebooks that are never executed.
	Skip []string `yaml:"skip,omitempty" json:"skip,omitempty"`

	Unreleased Unreleased `yaml:"unreleased,omitempty" json:"unreleased,omitempty"`

	// Packages are installed into the base environment before cloning.
	Packages []string `yaml:"packages,omitempty" json:"packages,omitempty"`

	// Partitions is the number of partition labels test cases are spread over.
	Partitions int `yaml:"partitions,omitempty" json:"partitions,omitempty"`

	// BaseRevisions are tried in order to find the diff base.
	BaseRevisions []string `yaml:"base_revisions,omitempty" json:"base_revisions,omitempty"`

	// Escalate holds glob patterns of files whose change re-runs every notebook.
	// The config file itself is always included. Unset means
	// dev_tools/requirements/**; an explicit empty list disables it.
	Escalate []string `yaml:"escalate,omitempty" json:"escalate,omitempty"`

	// OutDir receives executed notebooks and logs, relative to the root.
	OutDir string `yaml:"out_dir,omitempty" json:"out_dir,omitempty"`

	// SubstitutionExt is the extension of the sibling rewrite-rules file.
	SubstitutionExt string `yaml:"substitution_ext,omitempty" json:"substitution_ext,omitempty"`

	Cleanup CleanupPolicy `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`

	// ArtifactName is the CI artifact that carries OutDir, mentioned in
	// failure messages.
	ArtifactName string `yaml:"artifact_name,omitempty" json:"artifact_name,omitempty"`

	Exec      ExecConfig      `yaml:"exec,omitempty" json:"exec,omitempty"`
	Venv      VenvConfig      `yaml:"venv,omitempty" json:"venv,omitempty"`
	Artifacts ArtifactsConfig `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`

	// Path is the file the config was loaded from. Empty for defaults.
	Path string `yaml:"-" json:"-"`

	// Root is the repository root all relative paths resolve against.
	Root string `yaml:"-" json:"-"`
}

// Unreleased lists notebooks that need features not yet released.
// They are skipped by execution and checked for install markers instead.
type Unreleased struct {
	Notebooks []string `yaml:"notebooks,omitempty" json:"notebooks,omitempty"`

	// Patterns are regular expressions each notebook must match.
	// Derived from Package and PreReleasePin when empty.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// ExecConfig controls notebook execution.
type ExecConfig struct {
	// Tool is invoked as `<tool> <input> <output>`.
	Tool string `yaml:"tool,omitempty" json:"tool,omitempty"`

	// PreCommands run after activation and before the tool.
	PreCommands []string `yaml:"pre_commands,omitempty" json:"pre_commands,omitempty"`

	// PassEnv names parent variables copied into the otherwise empty
	// environment of the execution subprocess.
	PassEnv []string `yaml:"pass_env,omitempty" json:"pass_env,omitempty"`

	// Timeout bounds a single notebook run, e.g. "20m". Empty means none.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout. Zero means no timeout.
func (e ExecConfig) TimeoutDuration() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse exec.timeout: %w", err)
	}
	return d, nil
}

// VenvConfig controls environment provisioning.
type VenvConfig struct {
	Python    string `yaml:"python,omitempty" json:"python,omitempty"`
	CloneTool string `yaml:"clone_tool,omitempty" json:"clone_tool,omitempty"`
	WorkDir   string `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
	EnvName   string `yaml:"env_name,omitempty" json:"env_name,omitempty"`
}

// ArtifactsConfig enables upload of output notebooks to an S3-compatible store.
// Upload is disabled when Endpoint is empty.
type ArtifactsConfig struct {
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Bucket   string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	UseSSL   bool   `yaml:"use_ssl,omitempty" json:"use_ssl,omitempty"`

	AccessKey string `yaml:"-" json:"-"`
	SecretKey string `yaml:"-" json:"-"`
}

// Enabled reports whether artifact upload is configured.
func (a ArtifactsConfig) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != ""
}

// New returns a Config rooted at root with every default applied.
func New(root string) *Config {
	c := &Config{Root: root}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Partitions == 0 {
		c.Partitions = 1
	}
	if len(c.BaseRevisions) == 0 {
		c.BaseRevisions = []string{"upstream/main", "origin/main", "main"}
	}
	if len(c.Packages) == 0 {
		c.Packages = []string{"papermill", "jupyter"}
	}
	if c.Escalate == nil {
		c.Escalate = []string{"dev_tools/requirements/**"}
	}
	if c.OutDir == "" {
		c.OutDir = "out"
	}
	if c.SubstitutionExt == "" {
		c.SubstitutionExt = ".tst"
	}
	if c.Cleanup == "" {
		c.Cleanup = CleanupOnSuccess
	}
	if c.ArtifactName == "" {
		c.ArtifactName = "notebook-outputs"
	}
	if c.Exec.Tool == "" {
		c.Exec.Tool = "papermill"
	}
	if c.Exec.PreCommands == nil {
		c.Exec.PreCommands = []string{"pip list"}
	}
	if c.Venv.Python == "" {
		c.Venv.Python = "python3"
	}
	if c.Venv.CloneTool == "" {
		c.Venv.CloneTool = "virtualenv-clone"
	}
	if c.Venv.WorkDir == "" {
		c.Venv.WorkDir = filepath.Join(os.TempDir(), "nbiso")
	}
	if c.Venv.EnvName == "" {
		c.Venv.EnvName = "isolated_notebook_tests"
	}
	if c.Artifacts.Enabled() && c.Artifacts.Region == "" {
		c.Artifacts.Region = "us-east-1"
	}
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Root == "" {
		return invalid("root is required")
	}
	if c.Partitions < 1 {
		return invalid("partitions must be >= 1, got %d", c.Partitions)
	}
	if !strings.HasPrefix(c.SubstitutionExt, ".") {
		return invalid("substitution_ext must start with '.', got %q", c.SubstitutionExt)
	}
	if filepath.IsAbs(c.OutDir) || strings.HasPrefix(filepath.Clean(c.OutDir), "..") {
		return invalid("out_dir must be relative to the root: %q", c.OutDir)
	}
	if !isValidCleanup(c.Cleanup) {
		return invalid("cleanup %q: must be one of %v", c.Cleanup, ValidCleanupPolicies)
	}
	if _, err := c.Exec.TimeoutDuration(); err != nil {
		return invalid("%v", err)
	}
	if len(c.Unreleased.Notebooks) > 0 && len(c.MarkerPatterns()) == 0 {
		return invalid("unreleased notebooks need unreleased.patterns or package and pre_release_pin")
	}
	for i, p := range c.Unreleased.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return invalid("unreleased.patterns[%d]: %v", i, err)
		}
	}
	if c.Artifacts.Enabled() {
		if err := c.Artifacts.validate(); err != nil {
			return invalid("artifacts: %v", err)
		}
	}
	return nil
}

func (a ArtifactsConfig) validate() error {
	if strings.TrimSpace(a.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(a.AccessKey) == "" {
		return errors.New("access key is required (NBISO_MINIO_ACCESS_KEY)")
	}
	if strings.TrimSpace(a.SecretKey) == "" {
		return errors.New("secret key is required (NBISO_MINIO_SECRET_KEY)")
	}
	if strings.Contains(a.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", a.Endpoint)
	}
	return nil
}

// SkipPatterns returns every pattern excluded from execution: the skip list
// followed by the unreleased notebooks.
func (c *Config) SkipPatterns() []string {
	out := make([]string, 0, len(c.Skip)+len(c.Unreleased.Notebooks))
	out = append(out, c.Skip...)
	return append(out, c.Unreleased.Notebooks...)
}

// EscalationPatterns returns the globs that make a diff select all notebooks.
func (c *Config) EscalationPatterns() []string {
	var out []string
	if rel := c.RelPath(); rel != "" {
		out = append(out, rel)
	}
	return append(out, c.Escalate...)
}

// RelPath is the config file relative to the root, slash separated.
// Empty when the file is outside the root or the config has no file.
func (c *Config) RelPath() string {
	if c.Path == "" {
		return ""
	}
	rel, err := filepath.Rel(c.Root, c.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// Name returns the DisplayName, falling back to Package in title case.
func (c *Config) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return cases.Title(language.English).String(c.Package)
}

// MarkerPatterns returns the regular expressions an unreleased notebook must
// contain: the pinned install command and the warning sentence.
func (c *Config) MarkerPatterns() []string {
	if len(c.Unreleased.Patterns) > 0 {
		return c.Unreleased.Patterns
	}
	if c.Package == "" || c.PreReleasePin == "" {
		return nil
	}
	pkg := regexp.QuoteMeta(c.Package) + `(-[\w-]+)?`
	pin := regexp.QuoteMeta(c.PreReleasePin)
	return []string{
		`!pip install --upgrade --quiet ` + pkg + pin,
		`Note: this notebook relies on unreleased ` + regexp.QuoteMeta(c.Name()) + ` features\. ` +
			`If you want to try these features, make sure you install ` + pkg + ` via ` +
			"`pip install --upgrade " + pkg + pin + "`" + `\.`,
	}
}

// InstallHint returns the pinned and plain install commands used in the
// remediation hint. Both are empty when Package is unset.
func (c *Config) InstallHint() (pinned, plain string) {
	if c.Package == "" {
		return "", ""
	}
	return "pip install --upgrade " + c.Package + c.PreReleasePin, "pip install " + c.Package
}

func isValidCleanup(p CleanupPolicy) bool {
	for _, v := range ValidCleanupPolicies {
		if v == p {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
