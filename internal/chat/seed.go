package chat

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedRoom describes a room to create at startup.
type SeedRoom struct {
	Name      string `yaml:"name"`
	TimeLimit uint32 `yaml:"time_limit"`
}

type seedFile struct {
	Rooms []SeedRoom `yaml:"rooms"`
}

// LoadSeed reads a YAML list of rooms from path.
//
// Precondition: path must point to a file with a top-level "rooms" list.
// Postcondition: Returns the parsed rooms or a non-nil error; every room has a non-empty name.
func LoadSeed(path string) ([]SeedRoom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed rooms from YAML bytes.
func ParseSeed(data []byte) ([]SeedRoom, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}
	for i, room := range file.Rooms {
		name := strings.TrimSpace(room.Name)
		if name == "" {
			return nil, fmt.Errorf("seed room %d: name must not be empty", i)
		}
		file.Rooms[i].Name = name
	}
	return file.Rooms, nil
}

// Seed creates one room per entry, in order.
func (r *Registry) Seed(rooms []SeedRoom) []*Room {
	out := make([]*Room, 0, len(rooms))
	for _, s := range rooms {
		out = append(out, r.Create(s.Name, s.TimeLimit))
	}
	return out
}
