package alert

import (
	"fmt"
	"sort"
	"strings"
)

type Workflow struct {
	State          string `json:"state"`
	Remediation    string `json:"remediation"`
	LastUpdateTime string `json:"last_update_time"`
	Comment        string `json:"comment"`
	ChangedBy      string `json:"changed_by"`
}

type ThreatIndicator struct {
	ProcessName string   `json:"process_name"`
	SHA256      string   `json:"sha256"`
	TTPs        []string `json:"ttps"`
}

// NGAV is a next-generation antivirus alert.
type NGAV struct {
	Type                       string            `json:"type"`
	ID                         string            `json:"id"`
	LegacyAlertID              string            `json:"legacy_alert_id"`
	OrgKey                     string            `json:"org_key"`
	CreateTime                 string            `json:"create_time"`
	LastUpdateTime             string            `json:"last_update_time"`
	FirstEventTime             string            `json:"first_event_time"`
	LastEventTime              string            `json:"last_event_time"`
	ThreatID                   string            `json:"threat_id"`
	Severity                   uint8             `json:"severity"`
	Category                   string            `json:"category"`
	DeviceID                   uint64            `json:"device_id"`
	DeviceOS                   string            `json:"device_os"`
	DeviceOSVersion            string            `json:"device_os_version"`
	DeviceName                 string            `json:"device_name"`
	DeviceUsername             string            `json:"device_username"`
	PolicyID                   uint64            `json:"policy_id"`
	PolicyName                 string            `json:"policy_name"`
	TargetValue                string            `json:"target_value"`
	Workflow                   Workflow          `json:"workflow"`
	DeviceInternalIP           string            `json:"device_internal_ip"`
	DeviceExternalIP           string            `json:"device_external_ip"`
	AlertURL                   string            `json:"alert_url"`
	Reason                     string            `json:"reason"`
	ReasonCode                 string            `json:"reason_code"`
	ProcessName                string            `json:"process_name"`
	DeviceLocation             string            `json:"device_location"`
	CreatedByEventID           string            `json:"created_by_event_id"`
	ThreatIndicators           []ThreatIndicator `json:"threat_indicators"`
	ThreatCauseActorSHA256     string            `json:"threat_cause_actor_sha256"`
	ThreatCauseActorName       string            `json:"threat_cause_actor_name"`
	ThreatCauseActorProcessPID string            `json:"threat_cause_actor_process_pid"`
	ThreatCauseReputation      string            `json:"threat_cause_reputation"`
	ThreatCauseThreatCategory  string            `json:"threat_cause_threat_category"`
	ThreatCauseVector          string            `json:"threat_cause_vector"`
	ThreatCauseCauseEventID    string            `json:"threat_cause_cause_event_id"`
	BlockedThreatCategory      string            `json:"blocked_threat_category"`
	NotBlockedThreatCategory   string            `json:"not_blocked_threat_category"`
	KillChainStatus            []string          `json:"kill_chain_status"`
	RunState                   string            `json:"run_state"`
	PolicyApplied              string            `json:"policy_applied"`
}

// NGAVMarkers are the fields whose joint presence identifies an NGAV alert.
var NGAVMarkers = []string{"threat_id", "policy_id", "workflow", "reason"}

// MITREPrefix marks tactic/technique entries among threat indicator TTPs.
const MITREPrefix = "MITRE_"

// ParseNGAV decodes d as an NGAV alert, requiring every schema field.
func ParseNGAV(d *Document) (*NGAV, error) {
	var n NGAV
	if err := parseStrict(d, &n); err != nil {
		return nil, fmt.Errorf("parse ngav alert: %w", err)
	}
	return &n, nil
}

// AlertKey identifies the alert at its origin: device name and alert ID.
func (n *NGAV) AlertKey() string {
	return n.DeviceName + "_" + n.ID
}

func (n *NGAV) SeverityLevel() string {
	return SeverityLabel(n.Severity)
}

func (n *NGAV) IsCritical() bool {
	return n.Severity <= 2
}

func (n *NGAV) IsMalware() bool {
	return !strings.Contains(n.ThreatCauseThreatCategory, "NON_MALWARE")
}

// IsBlocked is true when the policy was applied or a blocked category is known.
func (n *NGAV) IsBlocked() bool {
	return n.PolicyApplied == "APPLIED" || n.BlockedThreatCategory != "UNKNOWN"
}

func (n *NGAV) HasMITRETTPs() bool {
	for _, ti := range n.ThreatIndicators {
		for _, ttp := range ti.TTPs {
			if strings.HasPrefix(ttp, MITREPrefix) {
				return true
			}
		}
	}
	return false
}

// MITRETTPs returns the MITRE entries across all indicators, in order.
func (n *NGAV) MITRETTPs() []string {
	var out []string
	for _, ti := range n.ThreatIndicators {
		for _, ttp := range ti.TTPs {
			if strings.HasPrefix(ttp, MITREPrefix) {
				out = append(out, ttp)
			}
		}
	}
	return out
}

// AffectedProcesses returns the distinct indicator process names, sorted.
func (n *NGAV) AffectedProcesses() []string {
	seen := make(map[string]struct{}, len(n.ThreatIndicators))
	var out []string
	for _, ti := range n.ThreatIndicators {
		if _, ok := seen[ti.ProcessName]; ok {
			continue
		}
		seen[ti.ProcessName] = struct{}{}
		out = append(out, ti.ProcessName)
	}
	sort.Strings(out)
	return out
}

func (n *NGAV) ThreatSummary() string {
	return fmt.Sprintf("%s - %s (%s)", n.Reason, n.ThreatCauseActorName, n.ThreatCauseThreatCategory)
}

// IndicatorStrings flattens indicators to "process_name:sha256".
func IndicatorStrings(indicators []ThreatIndicator) []string {
	out := make([]string, 0, len(indicators))
	for _, ti := range indicators {
		out = append(out, ti.ProcessName+":"+ti.SHA256)
	}
	return out
}
