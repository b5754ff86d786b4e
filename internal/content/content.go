// Package content reads competition content (rounds and questions) from YAML.
package content

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trivia-live-service/internal/domain"
)

// File is the top-level document of a content file.
type File struct {
	Competitions []Competition `json:"competitions"`
}

// Competition lists its rounds in play order.
type Competition struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Pin    string  `json:"pin"`
	Rounds []Round `json:"rounds"`
}

// Round lists its questions in play order.
type Round struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Type      domain.RoundType  `json:"type"`
	Questions []domain.Question `json:"questions"`
}

// Load reads a YAML content file from path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(data)
}

// Parse decodes YAML content. Question payloads go through the JSON codec of
// domain.Question so the content variant matches its type tag.
func Parse(data []byte) (File, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return File{}, fmt.Errorf("parse content yaml: %w", err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return File{}, fmt.Errorf("convert content: %w", err)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("decode content: %w", err)
	}
	for ci, c := range f.Competitions {
		if c.ID == "" {
			return File{}, fmt.Errorf("competition %d has no id", ci)
		}
		for ri, r := range c.Rounds {
			if r.ID == "" {
				return File{}, fmt.Errorf("competition %s: round %d has no id", c.ID, ri)
			}
			if r.Type == "" {
				f.Competitions[ci].Rounds[ri].Type = domain.RoundStandard
			}
			for qi := range r.Questions {
				q := &f.Competitions[ci].Rounds[ri].Questions[qi]
				if q.ID == "" {
					return File{}, fmt.Errorf("competition %s: round %s: question %d has no id", c.ID, r.ID, qi)
				}
				q.RoundID = r.ID
			}
		}
	}
	return f, nil
}
