// Package storage keeps per-guild bot state in the datastore: command
// history, disabled command groups and the registrar's pushed hashes.
package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/modkit/internal/datastore"
)

const commandHistoryLimit = 20

type Storage struct {
	ds  *datastore.Store
	log zerolog.Logger
	// guards read-modify-write of guild records
	mu sync.Mutex
}

type CommandHistoryRecord struct {
	InvocationID string        `json:"invocation_id"`
	ChannelID    string        `json:"channel_id"`
	UserID       string        `json:"user_id"`
	Command      string        `json:"command"`
	Module       string        `json:"module"`
	Duration     time.Duration `json:"duration"`
	Datetime     time.Time     `json:"datetime"`
}

// Record is everything stored for one guild.
type Record struct {
	CommandsHistory  []CommandHistoryRecord `json:"cmd_history"`
	CommandsDisabled []string               `json:"cmd_disabled"`
}

func New(ds *datastore.Store, log zerolog.Logger) *Storage {
	return &Storage{ds: ds, log: log}
}

func guildKey(guildID string) string { return "guild:" + guildID }

// record loads the guild record. Callers hold s.mu when they intend to write.
func (s *Storage) record(guildID string) (*Record, error) {
	var rec Record
	if _, err := s.ds.Get(guildKey(guildID), &rec); err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	return &rec, nil
}

func (s *Storage) update(guildID string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(guildID)
	if err != nil {
		return err
	}
	fn(rec)
	return s.ds.Put(guildKey(guildID), rec)
}

// AppendCommandToHistory appends a record, keeping the newest entries only.
func (s *Storage) AppendCommandToHistory(guildID string, entry CommandHistoryRecord) error {
	return s.update(guildID, func(r *Record) {
		r.CommandsHistory = append(r.CommandsHistory, entry)
		if n := len(r.CommandsHistory); n > commandHistoryLimit {
			r.CommandsHistory = r.CommandsHistory[n-commandHistoryLimit:]
		}
	})
}

func (s *Storage) CommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	rec, err := s.record(guildID)
	if err != nil {
		return nil, err
	}
	return rec.CommandsHistory, nil
}
