package storage

import "slices"

func (s *Storage) DisableGroup(guildID, group string) error {
	return s.update(guildID, func(r *Record) {
		if !slices.Contains(r.CommandsDisabled, group) {
			r.CommandsDisabled = append(r.CommandsDisabled, group)
		}
	})
}

func (s *Storage) EnableGroup(guildID, group string) error {
	return s.update(guildID, func(r *Record) {
		r.CommandsDisabled = slices.DeleteFunc(r.CommandsDisabled, func(g string) bool { return g == group })
	})
}

// IsGroupDisabled satisfies cmd.GroupChecker.
func (s *Storage) IsGroupDisabled(guildID, group string) (bool, error) {
	rec, err := s.record(guildID)
	if err != nil {
		return false, err
	}
	return slices.Contains(rec.CommandsDisabled, group), nil
}

func (s *Storage) DisabledGroups(guildID string) ([]string, error) {
	rec, err := s.record(guildID)
	if err != nil {
		return nil, err
	}
	return rec.CommandsDisabled, nil
}
