// service.go
package codetable

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
)

const defaultSimilarityThreshold = 0.3

// NewService loads all code tables from config.LocalPath. A malformed
// file, an empty file, or a table with zero codes is a load error: the
// caller must not serve requests without a working table store.
func NewService(config Config, log zerolog.Logger) (*Service, error) {
	if config.LocalPath == "" {
		return nil, fmt.Errorf("local path is required")
	}
	if config.SimilarityThreshold == 0 {
		config.SimilarityThreshold = defaultSimilarityThreshold
	}

	service := &Service{
		tables:    make(map[string]*CodeTable),
		threshold: config.SimilarityThreshold,
		log:       log.With().Str("component", "codetable").Logger(),
	}

	if err := service.loadTables(config.LocalPath); err != nil {
		return nil, err
	}
	if len(service.tables) == 0 {
		return nil, fmt.Errorf("no code tables defined in %s", config.LocalPath)
	}

	service.log.Info().
		Int("tables", len(service.tables)).
		Str("path", config.LocalPath).
		Msg("Loaded HL7 code tables")

	return service, nil
}

func (s *Service) loadTables(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read code tables file: %w", err)
	}

	var raw map[string]tableFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse code tables file: %w", err)
	}

	for id, entry := range raw {
		if len(entry.Codes) == 0 {
			return fmt.Errorf("code table %s has no codes", id)
		}

		table := &CodeTable{
			ID:          id,
			Name:        entry.Name,
			Description: entry.Description,
			codes:       make(map[string]struct{}, len(entry.Codes)),
			aliases:     entry.Aliases,
		}
		for _, code := range entry.Codes {
			table.codes[code] = struct{}{}
		}
		table.sorted = make([]string, 0, len(table.codes))
		for code := range table.codes {
			table.sorted = append(table.sorted, code)
		}
		sort.Strings(table.sorted)

		s.tables[id] = table
		s.log.Debug().
			Str("table", id).
			Int("codes", len(table.codes)).
			Msg("Loaded code table")
	}

	return nil
}

// Table returns the loaded table for id, or nil when unknown.
func (s *Service) Table(id string) *CodeTable {
	return s.tables[id]
}

// TableIDs returns the identifiers of all loaded tables, sorted.
func (s *Service) TableIDs() []string {
	ids := make([]string, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsValid reports whether code is acceptable for the given table. An
// unknown table imposes no constraint: not every field is governed by
// a table we carry, so unknown means "do not reject".
func (s *Service) IsValid(tableID, code string) bool {
	table, ok := s.tables[tableID]
	if !ok {
		return true
	}
	return table.Contains(code)
}

// FindSimilar returns valid codes from the table ranked by similarity
// to invalidCode, best first. Curated aliases rank above everything
// else. An empty result means no candidate cleared the threshold and
// the value must be left for manual review.
func (s *Service) FindSimilar(tableID, invalidCode string) []string {
	table, ok := s.tables[tableID]
	if !ok {
		s.log.Debug().Str("table", tableID).Msg("Unknown table, no suggestions")
		return nil
	}

	type scored struct {
		code  string
		score float64
	}

	candidates := make([]scored, 0, len(table.sorted))

	aliasCode := ""
	if alias, ok := table.aliases[invalidCode]; ok && table.Contains(alias) {
		aliasCode = alias
		candidates = append(candidates, scored{code: alias, score: 1.0})
	}

	for _, code := range table.sorted {
		if code == aliasCode {
			continue
		}
		score := similarity(invalidCode, code)
		if score >= s.threshold {
			candidates = append(candidates, scored{code: code, score: score})
		}
	}

	// Best score first; equal scores prefer the shorter (simpler) code.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return len(candidates[i].code) < len(candidates[j].code)
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.code
	}
	return out
}
