package labels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

var ErrSchema = errors.New("invalid label schema")

type Category int

const (
	General   Category = 0
	Character Category = 4
	Rating    Category = 9
	Other     Category = -1
)

func (c Category) String() string {
	switch c {
	case General:
		return "general"
	case Character:
		return "character"
	case Rating:
		return "rating"
	default:
		return "other"
	}
}

// underscores are part of these names and survive normalization
var kaomojis = []string{
	"0_0", "(o)_(o)", "+_+", "+_-", "._.", "<o>_<o>", "<|>_<|>", "=_=", ">_<", "3_3", "6_9", ">_o",
	"@_@", "^_^", "o_o", "u_u", "x_x", "|_|", "||_||",
}

type Tag struct {
	Name     string
	Category Category
}

// Schema is the model's tag vocabulary in output column order.
// It is immutable once loaded and safe for concurrent reads.
type Schema struct {
	tags      []Tag
	rating    []int
	general   []int
	character []int
}

// NormalizeName strips underscores unless the name is a known kaomoji.
func NormalizeName(name string) string {
	if slices.Contains(kaomojis, name) {
		return name
	}
	return strings.ReplaceAll(name, "_", "")
}

func parseCategory(code int) Category {
	switch Category(code) {
	case General, Character, Rating:
		return Category(code)
	default:
		return Other
	}
}

func newSchema(tags []Tag) *Schema {
	s := &Schema{tags: tags}
	for i, t := range tags {
		switch t.Category {
		case Rating:
			s.rating = append(s.rating, i)
		case General:
			s.general = append(s.general, i)
		case Character:
			s.character = append(s.character, i)
		}
	}
	return s
}

// LoadSchema reads a tag definition file. CSV files need "name" and "category"
// columns; .txt files are read as a flat list of general tags.
func LoadSchema(path string) (*Schema, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return ReadTagList(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	defer f.Close()
	s, err := ParseSchema(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseSchema(r io.Reader) (*Schema, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrSchema, err)
	}
	nameCol, categoryCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "name":
			nameCol = i
		case "category":
			categoryCol = i
		}
	}
	if nameCol < 0 || categoryCol < 0 {
		return nil, fmt.Errorf("%w: missing name or category column", ErrSchema)
	}

	var tags []Tag
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrSchema, len(tags)+1, err)
		}
		code, err := strconv.Atoi(strings.TrimSpace(record[categoryCol]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: bad category %q", ErrSchema, len(tags)+1, record[categoryCol])
		}
		tags = append(tags, Tag{
			Name:     NormalizeName(record[nameCol]),
			Category: parseCategory(code),
		})
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: no tags", ErrSchema)
	}
	return newSchema(tags), nil
}

func ReadTagList(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	var tags []Tag
	for _, l := range strings.Split(string(b), "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			tags = append(tags, Tag{Name: NormalizeName(l), Category: General})
		}
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: %s: no tags", ErrSchema, path)
	}
	return newSchema(tags), nil
}

func (s *Schema) Len() int { return len(s.tags) }

func (s *Schema) Tag(i int) Tag { return s.tags[i] }

// Indices returns the column positions of a category in row order.
// The returned slice must not be modified.
func (s *Schema) Indices(c Category) []int {
	switch c {
	case Rating:
		return s.rating
	case General:
		return s.general
	case Character:
		return s.character
	default:
		return nil
	}
}
