// Package requirements reads and writes the project's requirement list.
//
// The list lives in <root>/requirements.md as {"requirements": [...]}. The
// file is JSON, which also parses as YAML, so hand edits in either syntax work.
package requirements

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/agitegen/internal/logger"
	"gopkg.in/yaml.v3"
)

// FileName is the requirements file at the project root.
const FileName = "requirements.md"

// Requirement is one feature the generated code must contain.
// Symbol is the literal token searched for in the source tree.
type Requirement struct {
	Symbol      string `json:"symbol" yaml:"symbol" validate:"required,max=200"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ErrEmpty is returned by Parse when the text holds no requirement list.
var ErrEmpty = errors.New("no requirements found")

var validate = validator.New()

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)```")

// Path returns the requirements file path for a project root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load returns the requirements under root. A missing or unparseable file
// yields an empty list; the reason is logged at warn level.
func Load(root string) []Requirement {
	reqs, err := Read(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("no requirements file at %s", Path(root))
		} else {
			logger.Warn("ignoring requirements file: %v", err)
		}
		return nil
	}
	return reqs
}

// Read is the strict form of Load: it reports why the file could not be used.
func Read(root string) ([]Requirement, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		return nil, err
	}
	reqs, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FileName, err)
	}
	return reqs, nil
}

// Save writes reqs under root as {"requirements": [...]}.
func Save(root string, reqs []Requirement) error {
	if reqs == nil {
		reqs = []Requirement{}
	}
	data, err := json.MarshalIndent(struct {
		Requirements []Requirement `json:"requirements"`
	}{reqs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling requirements: %w", err)
	}
	if err := os.WriteFile(Path(root), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing requirements: %w", err)
	}
	return nil
}

// Parse extracts requirements from YAML or JSON text, as written by Save or
// returned by the planning model. A fenced code block, when present, is
// parsed instead of the whole text. The list may sit under a "requirements"
// key or be the top-level sequence. Items accept "description" or "desc".
// Items that fail validation are dropped with a warning.
func Parse(text string) ([]Requirement, error) {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parsing requirements: %w", err)
	}
	items := listNode(&doc)
	if items == nil {
		return nil, ErrEmpty
	}

	reqs := make([]Requirement, 0, len(items.Content))
	for i, item := range items.Content {
		var raw struct {
			Symbol      string `yaml:"symbol"`
			Description string `yaml:"description"`
			Desc        string `yaml:"desc"`
		}
		if err := item.Decode(&raw); err != nil {
			logger.Warn("skipping requirement %d: %v", i+1, err)
			continue
		}
		r := Requirement{
			Symbol:      strings.TrimSpace(raw.Symbol),
			Description: strings.TrimSpace(raw.Description),
		}
		if r.Description == "" {
			r.Description = strings.TrimSpace(raw.Desc)
		}
		if err := validate.Struct(r); err != nil {
			logger.Warn("skipping requirement %d: %v", i+1, err)
			continue
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// listNode finds the requirement sequence inside a parsed document.
func listNode(doc *yaml.Node) *yaml.Node {
	n := doc
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	switch n.Kind {
	case yaml.SequenceNode:
		return n
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "requirements" && n.Content[i+1].Kind == yaml.SequenceNode {
				return n.Content[i+1]
			}
		}
	}
	return nil
}

// Symbols returns the symbols of reqs in order.
func Symbols(reqs []Requirement) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Symbol
	}
	return out
}
