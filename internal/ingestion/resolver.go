package ingestion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rpattn/drillops/internal/domain"
	"github.com/rpattn/drillops/internal/repository"

	"github.com/google/uuid"
)

// Directory is a point-in-time snapshot of the reference data. It is built per
// validation pass and never shared between passes.
type Directory struct {
	lookups map[domain.ReferenceCategory]*referenceLookup
}

type referenceLookup struct {
	byCompact map[string]uuid.UUID
	names     []string
}

// LoadDirectory reads every reference category from repo.
func LoadDirectory(ctx context.Context, repo repository.ReferenceRepository) (*Directory, error) {
	entities := make(map[domain.ReferenceCategory][]domain.ReferenceEntity, len(domain.ReferenceCategories))
	for _, category := range domain.ReferenceCategories {
		list, err := repo.ListReferenceEntities(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s references: %w", category, err)
		}
		entities[category] = list
	}
	return NewDirectory(entities), nil
}

// NewDirectory indexes the given entities. When two names collapse to the same
// key the first one listed keeps it.
func NewDirectory(entities map[domain.ReferenceCategory][]domain.ReferenceEntity) *Directory {
	dir := &Directory{lookups: make(map[domain.ReferenceCategory]*referenceLookup, len(entities))}
	for category, list := range entities {
		lookup := &referenceLookup{
			byCompact: make(map[string]uuid.UUID, len(list)),
			names:     make([]string, 0, len(list)),
		}
		for _, entity := range list {
			if _, ok := lookup.byCompact[compactKey(entity.Name)]; !ok {
				lookup.byCompact[compactKey(entity.Name)] = entity.ID
			}
			lookup.names = append(lookup.names, entity.Name)
		}
		sort.Strings(lookup.names)
		dir.lookups[category] = lookup
	}
	return dir
}

// Resolve finds the id for name ignoring case and whitespace. It never creates entries.
func (d *Directory) Resolve(category domain.ReferenceCategory, name string) (uuid.UUID, bool) {
	lookup, ok := d.lookups[category]
	if !ok || strings.TrimSpace(name) == "" {
		return uuid.Nil, false
	}
	id, ok := lookup.byCompact[compactKey(name)]
	return id, ok
}

// Names returns the sorted valid names of a category.
func (d *Directory) Names(category domain.ReferenceCategory) []string {
	lookup, ok := d.lookups[category]
	if !ok {
		return []string{}
	}
	return append([]string(nil), lookup.names...)
}

// compactKey lower-cases and drops every whitespace rune, so "Rig 04",
// "RIG 04" and "rig04" share a key.
func compactKey(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, name)
}

// MissingReferences collects unresolved names per category across one
// validation pass. The first spelling seen for a name is kept.
type MissingReferences struct {
	names map[domain.ReferenceCategory][]string
	seen  map[domain.ReferenceCategory]map[string]bool
}

func NewMissingReferences() *MissingReferences {
	return &MissingReferences{
		names: make(map[domain.ReferenceCategory][]string),
		seen:  make(map[domain.ReferenceCategory]map[string]bool),
	}
}

func (m *MissingReferences) Add(category domain.ReferenceCategory, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if m.seen[category] == nil {
		m.seen[category] = make(map[string]bool)
	}
	key := compactKey(name)
	if m.seen[category][key] {
		return
	}
	m.seen[category][key] = true
	m.names[category] = append(m.names[category], name)
}

// Names returns the missing names of category in first-seen order.
func (m *MissingReferences) Names(category domain.ReferenceCategory) []string {
	return append([]string(nil), m.names[category]...)
}

func (m *MissingReferences) Empty() bool {
	for _, names := range m.names {
		if len(names) > 0 {
			return false
		}
	}
	return true
}
