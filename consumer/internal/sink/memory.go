package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/telhawk-systems/alertstream/consumer/internal/normalizer"
)

// MemorySink keeps records in maps keyed by ID. Used for --dry-run and tests.
type MemorySink struct {
	mu            sync.RWMutex
	common        map[string]*normalizer.CommonAlertRecord
	specific      map[string]normalizer.TypeSpecificRecord
	commonCalls   int
	specificCalls int
	commonErr     error
	specificErr   error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		common:   make(map[string]*normalizer.CommonAlertRecord),
		specific: make(map[string]normalizer.TypeSpecificRecord),
	}
}

// FailCommon makes subsequent StoreCommon calls return err. Nil restores.
func (s *MemorySink) FailCommon(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commonErr = err
}

// FailTypeSpecific makes subsequent StoreTypeSpecific calls return err.
func (s *MemorySink) FailTypeSpecific(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specificErr = err
}

func (s *MemorySink) StoreCommon(_ context.Context, rec *normalizer.CommonAlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commonCalls++
	if s.commonErr != nil {
		return s.commonErr
	}
	s.common[rec.ID] = rec
	return nil
}

func (s *MemorySink) StoreTypeSpecific(_ context.Context, rec normalizer.TypeSpecificRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specificCalls++
	if s.specificErr != nil {
		return s.specificErr
	}
	switch rec.(type) {
	case *normalizer.EdrRecord, *normalizer.NgavRecord:
	default:
		return ErrUnknownRecord
	}
	s.specific[rec.RecordID()] = rec
	return nil
}

// Common returns the stored common records ordered by ID.
func (s *MemorySink) Common() []*normalizer.CommonAlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*normalizer.CommonAlertRecord, 0, len(s.common))
	for _, r := range s.common {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TypeSpecific returns the stored type-specific records ordered by ID.
func (s *MemorySink) TypeSpecific() []normalizer.TypeSpecificRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]normalizer.TypeSpecificRecord, 0, len(s.specific))
	for _, r := range s.specific {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out
}

// Calls returns how many times each store method was invoked.
func (s *MemorySink) Calls() (common, typeSpecific int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commonCalls, s.specificCalls
}
