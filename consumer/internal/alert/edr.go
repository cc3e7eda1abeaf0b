package alert

import (
	"fmt"
	"strings"
)

type Publisher struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type Watchlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EDR is an endpoint detection and response watchlist hit.
type EDR struct {
	Schema            int32       `json:"schema"`
	CreateTime        string      `json:"create_time"`
	DeviceExternalIP  string      `json:"device_external_ip"`
	DeviceID          uint64      `json:"device_id"`
	DeviceInternalIP  string      `json:"device_internal_ip"`
	DeviceName        string      `json:"device_name"`
	DeviceOS          string      `json:"device_os"`
	IOCHit            string      `json:"ioc_hit"`
	IOCID             string      `json:"ioc_id"`
	OrgKey            string      `json:"org_key"`
	ParentCmdline     string      `json:"parent_cmdline"`
	ParentGUID        string      `json:"parent_guid"`
	ParentHash        []string    `json:"parent_hash"`
	ParentPath        string      `json:"parent_path"`
	ParentPID         uint32      `json:"parent_pid"`
	ParentPublisher   []Publisher `json:"parent_publisher"`
	ParentReputation  string      `json:"parent_reputation"`
	ParentUsername    string      `json:"parent_username"`
	ProcessCmdline    string      `json:"process_cmdline"`
	ProcessGUID       string      `json:"process_guid"`
	ProcessHash       []string    `json:"process_hash"`
	ProcessPath       string      `json:"process_path"`
	ProcessPID        uint32      `json:"process_pid"`
	ProcessPublisher  []Publisher `json:"process_publisher"`
	ProcessReputation string      `json:"process_reputation"`
	ProcessUsername   string      `json:"process_username"`
	ReportID          string      `json:"report_id"`
	ReportName        string      `json:"report_name"`
	ReportTags        []string    `json:"report_tags"`
	Severity          uint8       `json:"severity"`
	Type              string      `json:"type"`
	Watchlists        []Watchlist `json:"watchlists"`
}

// EDRMarkers are the fields whose joint presence identifies an EDR alert.
var EDRMarkers = []string{"report_id", "device_id", "process_path", "parent_path"}

// ParseEDR decodes d as an EDR alert, requiring every schema field.
func ParseEDR(d *Document) (*EDR, error) {
	var e EDR
	if err := parseStrict(d, &e); err != nil {
		return nil, fmt.Errorf("parse edr alert: %w", err)
	}
	return &e, nil
}

// AlertKey identifies the alert at its origin: device name and report ID.
func (e *EDR) AlertKey() string {
	return e.DeviceName + "_" + e.ReportID
}

func (e *EDR) SeverityLevel() string {
	return SeverityLabel(e.Severity)
}

// IsCritical is true for critical and high severities.
func (e *EDR) IsCritical() bool {
	return e.Severity <= 2
}

// HasTag reports whether any report tag contains tag.
func (e *EDR) HasTag(tag string) bool {
	for _, t := range e.ReportTags {
		if strings.Contains(t, tag) {
			return true
		}
	}
	return false
}

// ProcessInfo renders "path[pid] - cmdline" for log lines.
func (e *EDR) ProcessInfo() string {
	return fmt.Sprintf("%s[%d] - %s", e.ProcessPath, e.ProcessPID, e.ProcessCmdline)
}

// PublisherNames flattens publishers to their names.
func PublisherNames(publishers []Publisher) []string {
	names := make([]string, 0, len(publishers))
	for _, p := range publishers {
		names = append(names, p.Name)
	}
	return names
}

// WatchlistNames flattens watchlists to their names.
func WatchlistNames(watchlists []Watchlist) []string {
	names := make([]string, 0, len(watchlists))
	for _, w := range watchlists {
		names = append(names, w.Name)
	}
	return names
}
