// Package pagefile reads and writes the YAML page description used by linkctl
// and turns it into editor mutations.
package pagefile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"linkpage/api/internal/editor"
)

//go:embed page.schema.json
var schemaSource string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

var ErrInvalidPage = errors.New("invalid page file")

// Page is the desired state of a profile page. Nil profile fields are left
// as they are on the server.
type Page struct {
	Slug    string  `yaml:"slug,omitempty"`
	Profile Profile `yaml:"profile,omitempty"`
	Items   []Entry `yaml:"items"`
}

type Profile struct {
	DisplayName *string `yaml:"displayName,omitempty"`
	Bio         *string `yaml:"bio,omitempty"`
	AvatarURL   *string `yaml:"avatarUrl,omitempty"`
	Theme       *string `yaml:"theme,omitempty"`
}

// Entry is one item of the page. Entries without an id are created.
type Entry struct {
	ID    string `yaml:"id,omitempty"`
	Kind  string `yaml:"kind"`
	Title string `yaml:"title,omitempty"`
	URL   string `yaml:"url,omitempty"`
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("page.schema.json", schemaSource)
	})
	return schema, schemaErr
}

// Parse validates data against the page schema and decodes it.
func Parse(data []byte) (Page, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	if doc == nil {
		return Page{}, fmt.Errorf("%w: empty document", ErrInvalidPage)
	}

	// The validator expects JSON-shaped values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return Page{}, fmt.Errorf("compile page schema: %w", err)
	}
	if err := sch.Validate(instance); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}

	var page Page
	if err := yaml.Unmarshal(data, &page); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	return page, nil
}

func Load(path string) (Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Page{}, fmt.Errorf("read page file: %w", err)
	}
	return Parse(data)
}

// FromSnapshot describes server state as a page file, so `show` output can
// be edited and applied back.
func FromSnapshot(snapshot editor.Snapshot) Page {
	fields := snapshot.Profile.Fields
	page := Page{
		Slug: snapshot.Profile.Slug,
		Profile: Profile{
			Bio:       &fields.Bio,
			AvatarURL: &fields.AvatarURL,
		},
		Items: make([]Entry, 0, len(snapshot.Items)),
	}
	// Both must be non-empty on the server side.
	if fields.DisplayName != "" {
		page.Profile.DisplayName = &fields.DisplayName
	}
	if fields.Theme != "" {
		page.Profile.Theme = &fields.Theme
	}
	for _, item := range snapshot.Items {
		page.Items = append(page.Items, Entry{
			ID:    item.ID.Value(),
			Kind:  string(item.Kind),
			Title: item.Title,
			URL:   item.Target,
		})
	}
	return page
}

func Marshal(page Page) ([]byte, error) {
	return yaml.Marshal(page)
}
