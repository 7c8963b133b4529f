// SPDX-License-Identifier: MIT

// Package behavior carries the closed vocabulary the detection and
// validation prompts are built from. The table is data-driven: the same
// definitions feed prompt construction and response filtering.
package behavior

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var vocabularyYAML []byte

// Modality distinguishes visually observed behaviors from vocal ones.
type Modality string

const (
	Visual Modality = "visual"
	Audio  Modality = "audio"
)

// Definition is one vocabulary entry.
type Definition struct {
	Label      string   `yaml:"label"`
	Modality   Modality `yaml:"modality"`
	Definition string   `yaml:"definition"`
}

// Vocabulary is the closed label set with modality partition.
type Vocabulary struct {
	defs    []Definition
	byLabel map[string]Definition
}

const (
	wantTotal  = 14
	wantVisual = 9
	wantAudio  = 5
)

// Load parses and checks the embedded vocabulary table.
func Load() (*Vocabulary, error) {
	var doc struct {
		Behaviors []Definition `yaml:"behaviors"`
	}
	if err := yaml.Unmarshal(vocabularyYAML, &doc); err != nil {
		return nil, fmt.Errorf("behavior: parse vocabulary: %w", err)
	}

	v := &Vocabulary{
		defs:    doc.Behaviors,
		byLabel: make(map[string]Definition, len(doc.Behaviors)),
	}
	visual, audio := 0, 0
	for _, d := range doc.Behaviors {
		if d.Label == "" || d.Definition == "" {
			return nil, fmt.Errorf("behavior: incomplete entry %q", d.Label)
		}
		if _, dup := v.byLabel[d.Label]; dup {
			return nil, fmt.Errorf("behavior: duplicate label %q", d.Label)
		}
		switch d.Modality {
		case Visual:
			visual++
		case Audio:
			audio++
		default:
			return nil, fmt.Errorf("behavior: unknown modality %q for %q", d.Modality, d.Label)
		}
		v.byLabel[d.Label] = d
	}
	if len(v.defs) != wantTotal || visual != wantVisual || audio != wantAudio {
		return nil, fmt.Errorf("behavior: vocabulary shape %d/%d/%d, want %d/%d/%d",
			len(v.defs), visual, audio, wantTotal, wantVisual, wantAudio)
	}
	return v, nil
}

// MustLoad panics when the embedded table is malformed.
func MustLoad() *Vocabulary {
	v, err := Load()
	if err != nil {
		panic(err)
	}
	return v
}

// Contains reports whether label is in the closed vocabulary.
func (v *Vocabulary) Contains(label string) bool {
	_, ok := v.byLabel[label]
	return ok
}

// ModalityOf returns the partition side of label.
func (v *Vocabulary) ModalityOf(label string) (Modality, bool) {
	d, ok := v.byLabel[label]
	return d.Modality, ok
}

// Definitions returns the table in declaration order.
func (v *Vocabulary) Definitions() []Definition {
	out := make([]Definition, len(v.defs))
	copy(out, v.defs)
	return out
}

// Labels returns all labels in declaration order.
func (v *Vocabulary) Labels() []string {
	out := make([]string, 0, len(v.defs))
	for _, d := range v.defs {
		out = append(out, d.Label)
	}
	return out
}

// LabelsByModality returns the labels on one side of the partition.
func (v *Vocabulary) LabelsByModality(m Modality) []string {
	var out []string
	for _, d := range v.defs {
		if d.Modality == m {
			out = append(out, d.Label)
		}
	}
	return out
}
