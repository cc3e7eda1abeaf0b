package normalizer

import (
	"time"

	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// Provenance locates the broker record an alert came from.
type Provenance struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Topic      string `json:"source_topic"`
	Partition  int    `json:"source_partition"`
	Offset     int64  `json:"source_offset"`
}

// CommonAlertRecord is the cross-type fact stored for every classified alert.
type CommonAlertRecord struct {
	ID                 string            `json:"id"`
	OriginalID         string            `json:"original_id"`
	DataType           registry.DataType `json:"data_type"`
	CreateTime         time.Time         `json:"create_time"`
	CreateTimeFallback bool              `json:"create_time_fallback"`
	DeviceID           uint64            `json:"device_id"`
	DeviceName         string            `json:"device_name"`
	DeviceOS           string            `json:"device_os"`
	DeviceInternalIP   string            `json:"device_internal_ip"`
	DeviceExternalIP   string            `json:"device_external_ip"`
	OrgKey             string            `json:"org_key"`
	Severity           uint8             `json:"severity"`
	SeverityLabel      string            `json:"severity_label"`
	AlertType          string            `json:"alert_type"`
	ThreatCategory     string            `json:"threat_category"`
	DeviceUsername     string            `json:"device_username"`
	RawData            string            `json:"raw_data"`
	ProcessedTime      time.Time         `json:"processed_time"`
	Provenance
}

// TypeSpecificRecord is an EdrRecord or an NgavRecord.
type TypeSpecificRecord interface {
	RecordID() string
	DataType() registry.DataType
}

type EdrRecord struct {
	ID                string    `json:"id"`
	AlertKey          string    `json:"alert_key"`
	Schema            int32     `json:"schema"`
	CreateTime        time.Time `json:"create_time"`
	DeviceExternalIP  string    `json:"device_external_ip"`
	DeviceID          uint64    `json:"device_id"`
	DeviceInternalIP  string    `json:"device_internal_ip"`
	DeviceName        string    `json:"device_name"`
	DeviceOS          string    `json:"device_os"`
	IOCHit            string    `json:"ioc_hit"`
	IOCID             string    `json:"ioc_id"`
	OrgKey            string    `json:"org_key"`
	ParentCmdline     string    `json:"parent_cmdline"`
	ParentGUID        string    `json:"parent_guid"`
	ParentHash        []string  `json:"parent_hash"`
	ParentPath        string    `json:"parent_path"`
	ParentPID         uint32    `json:"parent_pid"`
	ParentPublisher   []string  `json:"parent_publisher"`
	ParentReputation  string    `json:"parent_reputation"`
	ParentUsername    string    `json:"parent_username"`
	ProcessCmdline    string    `json:"process_cmdline"`
	ProcessGUID       string    `json:"process_guid"`
	ProcessHash       []string  `json:"process_hash"`
	ProcessPath       string    `json:"process_path"`
	ProcessPID        uint32    `json:"process_pid"`
	ProcessPublisher  []string  `json:"process_publisher"`
	ProcessReputation string    `json:"process_reputation"`
	ProcessUsername   string    `json:"process_username"`
	ReportID          string    `json:"report_id"`
	ReportName        string    `json:"report_name"`
	ReportTags        []string  `json:"report_tags"`
	Severity          uint8     `json:"severity"`
	Type              string    `json:"type"`
	Watchlists        []string  `json:"watchlists"`
	ProcessedTime     time.Time `json:"processed_time"`
	Provenance
}

func (r *EdrRecord) RecordID() string            { return r.ID }
func (r *EdrRecord) DataType() registry.DataType { return registry.DataTypeEDR }

type NgavRecord struct {
	ID                         string    `json:"id"`
	AlertKey                   string    `json:"alert_key"`
	Type                       string    `json:"type"`
	AlertID                    string    `json:"alert_id"`
	LegacyAlertID              string    `json:"legacy_alert_id"`
	OrgKey                     string    `json:"org_key"`
	CreateTime                 time.Time `json:"create_time"`
	LastUpdateTime             string    `json:"last_update_time"`
	FirstEventTime             string    `json:"first_event_time"`
	LastEventTime              string    `json:"last_event_time"`
	ThreatID                   string    `json:"threat_id"`
	Severity                   uint8     `json:"severity"`
	Category                   string    `json:"category"`
	DeviceID                   uint64    `json:"device_id"`
	DeviceOS                   string    `json:"device_os"`
	DeviceOSVersion            string    `json:"device_os_version"`
	DeviceName                 string    `json:"device_name"`
	DeviceUsername             string    `json:"device_username"`
	PolicyID                   uint64    `json:"policy_id"`
	PolicyName                 string    `json:"policy_name"`
	TargetValue                string    `json:"target_value"`
	WorkflowState              string    `json:"workflow_state"`
	WorkflowRemediation        string    `json:"workflow_remediation"`
	WorkflowLastUpdateTime     string    `json:"workflow_last_update_time"`
	WorkflowComment            string    `json:"workflow_comment"`
	WorkflowChangedBy          string    `json:"workflow_changed_by"`
	DeviceInternalIP           string    `json:"device_internal_ip"`
	DeviceExternalIP           string    `json:"device_external_ip"`
	AlertURL                   string    `json:"alert_url"`
	Reason                     string    `json:"reason"`
	ReasonCode                 string    `json:"reason_code"`
	ProcessName                string    `json:"process_name"`
	DeviceLocation             string    `json:"device_location"`
	CreatedByEventID           string    `json:"created_by_event_id"`
	ThreatIndicators           []string  `json:"threat_indicators"`
	MITRETTPs                  []string  `json:"mitre_ttps"`
	AffectedProcesses          []string  `json:"affected_processes"`
	ThreatCauseActorSHA256     string    `json:"threat_cause_actor_sha256"`
	ThreatCauseActorName       string    `json:"threat_cause_actor_name"`
	ThreatCauseActorProcessPID string    `json:"threat_cause_actor_process_pid"`
	ThreatCauseReputation      string    `json:"threat_cause_reputation"`
	ThreatCauseThreatCategory  string    `json:"threat_cause_threat_category"`
	ThreatCauseVector          string    `json:"threat_cause_vector"`
	ThreatCauseCauseEventID    string    `json:"threat_cause_cause_event_id"`
	BlockedThreatCategory      string    `json:"blocked_threat_category"`
	NotBlockedThreatCategory   string    `json:"not_blocked_threat_category"`
	KillChainStatus            []string  `json:"kill_chain_status"`
	RunState                   string    `json:"run_state"`
	PolicyApplied              string    `json:"policy_applied"`
	IsMalware                  bool      `json:"is_malware"`
	IsBlocked                  bool      `json:"is_blocked"`
	ProcessedTime              time.Time `json:"processed_time"`
	Provenance
}

func (r *NgavRecord) RecordID() string            { return r.ID }
func (r *NgavRecord) DataType() registry.DataType { return registry.DataTypeNGAV }
