// Package registry reads alert source definitions and their declared data types.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSourceNotFound  = errors.New("source not found")
	ErrInvalidDataType = errors.New("data type must be edr or ngav")
	ErrInvalidSource   = errors.New("invalid source")
)

// DataType is the declared schema of the alerts a source carries.
type DataType string

const (
	DataTypeNone DataType = ""
	DataTypeEDR  DataType = "edr"
	DataTypeNGAV DataType = "ngav"
)

// ParseDataType validates s. The empty string yields DataTypeNone.
func ParseDataType(s string) (DataType, error) {
	switch DataType(strings.ToLower(strings.TrimSpace(s))) {
	case DataTypeNone:
		return DataTypeNone, nil
	case DataTypeEDR:
		return DataTypeEDR, nil
	case DataTypeNGAV:
		return DataTypeNGAV, nil
	default:
		return DataTypeNone, fmt.Errorf("%w: %q", ErrInvalidDataType, s)
	}
}

// String returns "unknown" for DataTypeNone so status output is never blank.
func (d DataType) String() string {
	if d == DataTypeNone {
		return "unknown"
	}
	return string(d)
}

// Kind selects the broker client used for a source.
type Kind string

const (
	KindKafka Kind = "kafka"
	KindNATS  Kind = "nats"
)

// Offset reset policies understood by the broker receivers.
const (
	OffsetEarliest = "earliest"
	OffsetLatest   = "latest"
)

// SourceConfig describes one broker endpoint the orchestrator can consume from.
type SourceConfig struct {
	ID                 uuid.UUID     `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	Kind               Kind          `json:"kind" yaml:"kind"`
	Brokers            string        `json:"brokers" yaml:"brokers"`
	Topic              string        `json:"topic" yaml:"topic"`
	GroupID            string        `json:"group_id" yaml:"group_id"`
	AutoOffsetReset    string        `json:"auto_offset_reset" yaml:"auto_offset_reset"`
	EnableAutoCommit   bool          `json:"enable_auto_commit" yaml:"enable_auto_commit"`
	AutoCommitInterval time.Duration `json:"auto_commit_interval" yaml:"auto_commit_interval"`
	SessionTimeout     time.Duration `json:"session_timeout" yaml:"session_timeout"`
	Active             bool          `json:"active" yaml:"-"`
	CreatedAt          time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time     `json:"updated_at" yaml:"-"`
}

// BrokerList splits the comma separated broker addresses.
func (s SourceConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(s.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ApplyDefaults fills the optional fields with the values new sources get.
func (s *SourceConfig) ApplyDefaults() {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Kind == "" {
		s.Kind = KindKafka
	}
	if s.AutoOffsetReset == "" {
		s.AutoOffsetReset = OffsetEarliest
	}
	if s.AutoCommitInterval == 0 {
		s.AutoCommitInterval = time.Second
	}
	if s.SessionTimeout == 0 {
		s.SessionTimeout = 6 * time.Second
	}
	if s.GroupID == "" && s.Name != "" {
		s.GroupID = "alertstream-" + s.Name
	}
}

// Validate checks the fields every receiver needs.
func (s SourceConfig) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.BrokerList()) == 0 {
		errs = append(errs, errors.New("brokers is required"))
	}
	if s.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	switch s.Kind {
	case KindKafka, KindNATS:
	default:
		errs = append(errs, fmt.Errorf("kind %q must be kafka or nats", s.Kind))
	}
	switch s.AutoOffsetReset {
	case OffsetEarliest, OffsetLatest:
	default:
		errs = append(errs, fmt.Errorf("auto_offset_reset %q must be earliest or latest", s.AutoOffsetReset))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidSource, s.Name, errors.Join(errs...))
	}
	return nil
}

// SourceRegistry is the read side the orchestrator depends on. Both calls are
// point-in-time reads; callers notice changes and call Refresh themselves.
type SourceRegistry interface {
	ListActiveSources(ctx context.Context) ([]SourceConfig, error)
	GetSourceTypeMapping(ctx context.Context) (map[uuid.UUID]DataType, error)
}

// Admin is the write side used by the CLI and tests.
type Admin interface {
	SourceRegistry
	ListSources(ctx context.Context) ([]SourceConfig, error)
	UpsertSource(ctx context.Context, src *SourceConfig) error
	SetDataType(ctx context.Context, id uuid.UUID, dataType DataType) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
