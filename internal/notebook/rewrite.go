package notebook

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// RuleSeparator splits a rule line into pattern and replacement.
const RuleSeparator = "->"

// Rule is one substitution from a rules file.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string // in regexp.Expand syntax

	// Line is the 1-based line of the rule in its file.
	Line int
}

// RulesPath returns the sibling rules file of a notebook: the same path with
// the notebook extension replaced by ext.
func RulesPath(notebookPath, ext string) string {
	return strings.TrimSuffix(notebookPath, Ext) + ext
}

// LoadRules reads the rules file at path. A missing file yields no rules
// and no error.
func LoadRules(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()

	rules, err := ParseRules(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules parses "pattern->replacement" lines. Lines without the
// separator are ignored. Replacements use Python group syntax (\1, \g<name>)
// and are translated for regexp.Expand.
func ParseRules(r io.Reader) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !strings.Contains(line, RuleSeparator) {
			continue
		}
		// Leading spaces belong to the pattern; only the line end is trimmed.
		pattern, replacement, _ := strings.Cut(strings.TrimRight(line, " \t\r"), RuleSeparator)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rules = append(rules, Rule{
			Pattern:     re,
			Replacement: translateReplacement(replacement),
			Line:        lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return rules, nil
}

// ApplyRules runs every rule, in order, over each line of content.
// Line terminators are preserved.
func ApplyRules(content string, rules []Rule) string {
	if len(rules) == 0 {
		return content
	}
	var b strings.Builder
	b.Grow(len(content))
	for _, line := range strings.SplitAfter(content, "\n") {
		for _, rule := range rules {
			line = rule.Pattern.ReplaceAllString(line, rule.Replacement)
		}
		b.WriteString(line)
	}
	return b.String()
}

// Rewrite applies the notebook's sibling rules (extension ext) and writes
// the result to a new temporary file in tmpDir ("" means the OS default).
// It returns the temporary path and true, or the original path and false
// when there is no rules file.
func Rewrite(notebookPath, ext, tmpDir string) (string, bool, error) {
	rules, err := LoadRules(RulesPath(notebookPath, ext))
	if err != nil {
		return "", false, err
	}
	if rules == nil {
		return notebookPath, false, nil
	}

	src, err := os.ReadFile(notebookPath)
	if err != nil {
		return "", false, fmt.Errorf("read notebook: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(notebookPath), Ext)
	f, err := os.CreateTemp(tmpDir, base+"-*"+Ext)
	if err != nil {
		return "", false, fmt.Errorf("create rewritten notebook: %w", err)
	}
	if _, err := f.WriteString(ApplyRules(string(src), rules)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", false, fmt.Errorf("write rewritten notebook: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", false, fmt.Errorf("close rewritten notebook: %w", err)
	}
	return f.Name(), true, nil
}

// translateReplacement converts a Python re.sub replacement into
// regexp.Expand syntax: \N and \g<name> become ${N} and ${name}, a literal $
// becomes $$, and \n, \t and \\ are unescaped.
func translateReplacement(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			b.WriteString("$$")
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			switch {
			case isDigit(next):
				j := i + 1
				for j < len(s) && isDigit(s[j]) {
					j++
				}
				b.WriteString("${" + s[i+1:j] + "}")
				i = j - 1
			case next == 'g' && i+2 < len(s) && s[i+2] == '<':
				end := strings.IndexByte(s[i+3:], '>')
				if end < 0 {
					b.WriteByte(c)
					continue
				}
				b.WriteString("${" + s[i+3:i+3+end] + "}")
				i = i + 3 + end
			case next == 'n':
				b.WriteByte('\n')
				i++
			case next == 't':
				b.WriteByte('\t')
				i++
			case next == '\\':
				b.WriteByte('\\')
				i++
			default:
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
