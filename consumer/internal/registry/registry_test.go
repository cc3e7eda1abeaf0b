package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataType(t *testing.T) {
	tests := []struct {
		input   string
		want    DataType
		wantErr bool
	}{
		{"edr", DataTypeEDR, false},
		{"NGAV", DataTypeNGAV, false},
		{" edr ", DataTypeEDR, false},
		{"", DataTypeNone, false},
		{"alert", DataTypeNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDataType(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDataType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataType_String(t *testing.T) {
	assert.Equal(t, "unknown", DataTypeNone.String())
	assert.Equal(t, "edr", DataTypeEDR.String())
}

func TestSourceConfig_BrokerList(t *testing.T) {
	s := SourceConfig{Brokers: " kafka-1:9092, ,kafka-2:9092 "}
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, s.BrokerList())
	assert.Empty(t, SourceConfig{}.BrokerList())
}

func TestSourceConfig_ApplyDefaults(t *testing.T) {
	s := SourceConfig{Name: "edr-prod"}
	s.ApplyDefaults()

	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, KindKafka, s.Kind)
	assert.Equal(t, OffsetEarliest, s.AutoOffsetReset)
	assert.Equal(t, time.Second, s.AutoCommitInterval)
	assert.Equal(t, 6*time.Second, s.SessionTimeout)
	assert.Equal(t, "alertstream-edr-prod", s.GroupID)

	keep := SourceConfig{Name: "x", GroupID: "custom", Kind: KindNATS, AutoOffsetReset: OffsetLatest}
	keep.ApplyDefaults()
	assert.Equal(t, "custom", keep.GroupID)
	assert.Equal(t, KindNATS, keep.Kind)
	assert.Equal(t, OffsetLatest, keep.AutoOffsetReset)
}

func TestSourceConfig_Validate(t *testing.T) {
	valid := SourceConfig{Name: "s", Brokers: "localhost:9092", Topic: "alerts"}
	valid.ApplyDefaults()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(s *SourceConfig)
		want   string
	}{
		{"missing name", func(s *SourceConfig) { s.Name = "" }, "name is required"},
		{"missing brokers", func(s *SourceConfig) { s.Brokers = " , " }, "brokers is required"},
		{"missing topic", func(s *SourceConfig) { s.Topic = "" }, "topic is required"},
		{"bad kind", func(s *SourceConfig) { s.Kind = "amqp" }, "kind"},
		{"bad offset", func(s *SourceConfig) { s.AutoOffsetReset = "middle" }, "auto_offset_reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSource)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
