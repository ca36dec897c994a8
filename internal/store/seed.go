package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Fixtures is the YAML document accepted by the seed command.
type Fixtures struct {
	Users  []User         `yaml:"users"`
	Groups []PatientGroup `yaml:"groups"`
}

// LoadFixtures decodes a fixtures document
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}
	return &f, nil
}

// Seed writes users, groups, their tablets and any pre-existing logs.
// Existing documents with the same IDs are replaced.
func (s *Store) Seed(ctx context.Context, f *Fixtures) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range f.Users {
			if err := tx.Save(&f.Users[i]).Error; err != nil {
				return fmt.Errorf("user %s: %w", f.Users[i].ID, err)
			}
		}

		for i := range f.Groups {
			g := &f.Groups[i]
			if err := tx.Save(g).Error; err != nil {
				return fmt.Errorf("group %s: %w", g.ID, err)
			}
			for j := range g.Tablets {
				t := &g.Tablets[j]
				t.PatientGroupID = g.ID
				if err := tx.Save(t).Error; err != nil {
					return fmt.Errorf("group %s tablet %s: %w", g.ID, t.ID, err)
				}
			}
			for j := range g.Logs {
				l := &g.Logs[j]
				l.PatientGroupID = g.ID
				l.CreatedAt = s.now()
				if err := tx.Save(l).Error; err != nil {
					return fmt.Errorf("group %s log %s: %w", g.ID, l.ID, err)
				}
			}
		}
		return nil
	})
}
