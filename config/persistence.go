package config

import (
	"encoding/json"
	"fmt"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/quasilyte/gdata"
)

const tuningItem = "tuning"

// Store persists tuning overrides between runs.
type Store struct {
	m *gdata.Manager
}

// OpenStore opens the per-user data directory for appName.
func OpenStore(appName string) (*Store, error) {
	m, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}
	return &Store{m: m}, nil
}

// LoadTuning returns the saved tuning, or nil if none was saved.
func (s *Store) LoadTuning() (*netconfig.Tuning, error) {
	data, err := s.m.LoadItem(tuningItem)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return decodeTuning(data)
}

func (s *Store) SaveTuning(t netconfig.Tuning) error {
	data, err := encodeTuning(t)
	if err != nil {
		return err
	}
	if err := s.m.SaveItem(tuningItem, data); err != nil {
		return fmt.Errorf("save tuning: %w", err)
	}
	return nil
}

func encodeTuning(t netconfig.Tuning) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to save tuning: %w", err)
	}
	return json.Marshal(t)
}

// decodeTuning starts from the defaults so fields missing from older saves
// keep their stock values.
func decodeTuning(data []byte) (*netconfig.Tuning, error) {
	t := netconfig.DefaultTuning()
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse saved tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("saved tuning: %w", err)
	}
	return &t, nil
}
