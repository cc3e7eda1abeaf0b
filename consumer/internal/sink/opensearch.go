package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/normalizer"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// OpenSearchConfig holds connection and index settings.
type OpenSearchConfig struct {
	URL             string
	Username        string
	Password        string
	TLSSkipVerify   bool
	IndexPrefix     string
	ShardCount      int
	ReplicaCount    int
	RefreshInterval string
}

func DefaultOpenSearchConfig() OpenSearchConfig {
	return OpenSearchConfig{
		URL:             "https://localhost:9200",
		Username:        "admin",
		Password:        "admin",
		TLSSkipVerify:   true,
		IndexPrefix:     "alertstream",
		ShardCount:      1,
		ReplicaCount:    0,
		RefreshInterval: "5s",
	}
}

// OpenSearchSink writes records into one index per record family. The record
// ID is used as document ID, so a repeated write replaces the document.
type OpenSearchSink struct {
	client *opensearch.Client
	config OpenSearchConfig
	logger *logging.Logger
}

func NewOpenSearchSink(cfg OpenSearchConfig, logger *logging.Logger) (*OpenSearchSink, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchSink{
		client: client,
		config: cfg,
		logger: logging.OrDefault(logger),
	}, nil
}

// CommonIndex is the index holding common records.
func (s *OpenSearchSink) CommonIndex() string {
	return s.config.IndexPrefix + "-common"
}

// TypeIndex is the index holding type-specific records of dt.
func (s *OpenSearchSink) TypeIndex(dt registry.DataType) string {
	return s.config.IndexPrefix + "-" + string(dt)
}

// Initialize verifies the cluster is reachable and installs the index template.
func (s *OpenSearchSink) Initialize(ctx context.Context) error {
	info, err := s.client.Info(s.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	if err := s.putIndexTemplate(ctx); err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}

	s.logger.Info("OpenSearch sink initialized", "index_prefix", s.config.IndexPrefix)
	return nil
}

func (s *OpenSearchSink) StoreCommon(ctx context.Context, rec *normalizer.CommonAlertRecord) error {
	return s.index(ctx, s.CommonIndex(), rec.ID, rec)
}

func (s *OpenSearchSink) StoreTypeSpecific(ctx context.Context, rec normalizer.TypeSpecificRecord) error {
	switch rec.(type) {
	case *normalizer.EdrRecord, *normalizer.NgavRecord:
	default:
		return ErrUnknownRecord
	}
	return s.index(ctx, s.TypeIndex(rec.DataType()), rec.RecordID(), rec)
}

func (s *OpenSearchSink) index(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", index, err)
	}

	res, err := s.client.Index(
		index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(id),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index %s/%s: %s - %s", index, id, res.Status(), string(msg))
	}
	return nil
}

func (s *OpenSearchSink) putIndexTemplate(ctx context.Context) error {
	template := map[string]interface{}{
		"index_patterns": []string{s.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   s.config.ShardCount,
				"number_of_replicas": s.config.ReplicaCount,
				"refresh_interval":   s.config.RefreshInterval,
			},
			"mappings": recordMappings(),
		},
		"priority": 100,
	}

	body, err := json.Marshal(template)
	if err != nil {
		return err
	}

	res, err := s.client.Indices.PutIndexTemplate(
		s.config.IndexPrefix+"-template",
		bytes.NewReader(body),
		s.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s - %s", res.Status(), string(msg))
	}
	return nil
}

// recordMappings maps strings to keywords, except the free-text fields.
func recordMappings() map[string]interface{} {
	prop := func(typ string) map[string]interface{} {
		return map[string]interface{}{"type": typ}
	}
	return map[string]interface{}{
		"dynamic": true,
		"dynamic_templates": []map[string]interface{}{
			{
				"strings_as_keywords": map[string]interface{}{
					"match_mapping_type": "string",
					"mapping": map[string]interface{}{
						"type":         "keyword",
						"ignore_above": 1024,
					},
				},
			},
		},
		"properties": map[string]interface{}{
			"create_time":          prop("date"),
			"processed_time":       prop("date"),
			"create_time_fallback": prop("boolean"),
			"severity":             prop("short"),
			"device_id":            prop("unsigned_long"),
			"policy_id":            prop("unsigned_long"),
			"source_partition":     prop("integer"),
			"source_offset":        prop("long"),
			"process_cmdline":      prop("text"),
			"parent_cmdline":       prop("text"),
			"reason":               prop("text"),
			"raw_data": map[string]interface{}{
				"type":  "text",
				"index": false,
			},
		},
	}
}
