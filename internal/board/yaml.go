package board

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// File is the YAML shape of a board definition:
//
//	size: 100
//	snakes:  {36: 6, 98: 78}
//	ladders: {4: 14, 80: 100}
type File struct {
	Size    int         `yaml:"size"`
	Snakes  map[int]int `yaml:"snakes"`
	Ladders map[int]int `yaml:"ladders"`
}

// ParseYAML decodes and validates a board definition.
// A missing size defaults to DefaultSize.
func ParseYAML(data []byte) (*Board, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse board yaml: %w", err)
	}
	if f.Size == 0 {
		f.Size = DefaultSize
	}
	return New(f.Size, f.Snakes, f.Ladders)
}

// LoadFile reads a YAML board from path.
func LoadFile(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board %s: %w", path, err)
	}
	return ParseYAML(data)
}

// MarshalYAML renders b in the File format.
func (b *Board) MarshalYAML() (interface{}, error) {
	return File{Size: b.size, Snakes: b.Snakes(), Ladders: b.Ladders()}, nil
}
