// Package sysprompt assembles the Assistant's system message from keyed
// contributions (§4.3.3): grouped by section in canonical order, sorted by
// priority then key, and rendered through a template engine.
package sysprompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Section is the canonical grouping a contribution belongs to. Sections
// render in this fixed order; Custom sections (named by CustomName) sort
// lexicographically after the fixed ones.
type Section int

const (
	Identity Section = iota
	Context
	Capabilities
	Guidelines
	Tools
	Instructions
	SystemContext
	Custom
)

func (s Section) header() string {
	switch s {
	case Identity:
		return "Identity"
	case Context:
		return "Context"
	case Capabilities:
		return "Capabilities"
	case Guidelines:
		return "Guidelines"
	case Tools:
		return "Tools"
	case Instructions:
		return "Instructions"
	case SystemContext:
		return "System Context"
	default:
		return ""
	}
}

// Contribution is a single keyed fragment participating in assembly.
// Either Content is pre-rendered text, or Data+DefaultTemplate describe how
// to render it - exactly one of the two forms is used.
type Contribution struct {
	Key      string
	Section  Section
	// CustomName is the section label when Section == Custom; contributions
	// in different custom sections sort by this name lexicographically.
	CustomName string
	Priority   int

	Content         string // pre-rendered form
	Data            any    // templated form
	DefaultTemplate string // templated form; Go text/template source
}

func (c Contribution) render() (string, error) {
	if c.DefaultTemplate == "" {
		return c.Content, nil
	}
	t, err := template.New(c.Key).Parse(c.DefaultTemplate)
	if err != nil {
		return "", fmt.Errorf("sysprompt: parse template for %q: %w", c.Key, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, c.Data); err != nil {
		return "", fmt.Errorf("sysprompt: render template for %q: %w", c.Key, err)
	}
	return buf.String(), nil
}

func (c Contribution) sectionLabel() string {
	if c.Section == Custom {
		return c.CustomName
	}
	return c.Section.header()
}

// Set is the full keyed contribution map the assistant maintains. Upsert
// replaces any existing entry with the same key (§3 "insert/replace by
// key").
type Set struct {
	byKey map[string]Contribution
}

func NewSet() *Set {
	return &Set{byKey: make(map[string]Contribution)}
}

func (s *Set) Upsert(c Contribution) {
	s.byKey[c.Key] = c
}

func (s *Set) Len() int {
	return len(s.byKey)
}

// Assemble renders the system prompt: group by section (canonical order,
// then Custom sections lexicographic by name), sort within a section by
// priority descending then key ascending, render each, concatenate with
// section headers (§4.3.3, §8 invariant 5: deterministic given the same
// contribution set).
func (s *Set) Assemble() (string, error) {
	all := make([]Contribution, 0, len(s.byKey))
	for _, c := range s.byKey {
		all = append(all, c)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.Section == Custom && a.CustomName != b.CustomName {
			return a.CustomName < b.CustomName
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Key < b.Key
	})

	var out strings.Builder
	var currentLabel string
	first := true
	for _, c := range all {
		rendered, err := c.render()
		if err != nil {
			return "", err
		}
		if rendered == "" {
			continue
		}
		label := c.sectionLabel()
		if label != currentLabel {
			if !first {
				out.WriteString("\n\n")
			}
			if label != "" {
				out.WriteString("# ")
				out.WriteString(label)
				out.WriteString("\n\n")
			}
			currentLabel = label
		} else if !first {
			out.WriteString("\n\n")
		}
		out.WriteString(rendered)
		first = false
	}
	return out.String(), nil
}
