// Package normalizer maps classified alerts onto the records written to the
// analytical store.
package normalizer

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/alert"
	"github.com/telhawk-systems/alertstream/consumer/internal/classifier"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// ErrNothingToNormalize is returned for an unrecognized classification result.
var ErrNothingToNormalize = errors.New("classification result carries no alert")

// recordNamespace seeds the name-based record IDs.
var recordNamespace = uuid.MustParse("0b8e4a3c-5d2f-4e61-9a7b-3c1d2e4f5a60")

// Normalizer is stateless apart from its clock and is safe for concurrent use.
type Normalizer struct {
	now    func() time.Time
	logger *logging.Logger
}

func New(logger *logging.Logger) *Normalizer {
	return &Normalizer{
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.OrDefault(logger),
	}
}

// RecordID derives the synthetic record ID from the broker position and the
// alert key, so a redelivered message maps onto the same ID.
func RecordID(prov Provenance, alertKey string) string {
	name := prov.Topic + "/" + strconv.Itoa(prov.Partition) + "/" +
		strconv.FormatInt(prov.Offset, 10) + "/" + alertKey
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// Normalize produces the common and type-specific records for res. raw is the
// decoded payload text.
func (n *Normalizer) Normalize(res classifier.Result, raw string, prov Provenance) (*CommonAlertRecord, TypeSpecificRecord, error) {
	processed := n.now()
	switch {
	case res.Kind == classifier.KindEDR && res.EDR != nil:
		common, edr := n.normalizeEDR(res.EDR, raw, prov, processed)
		return common, edr, nil
	case res.Kind == classifier.KindNGAV && res.NGAV != nil:
		common, ngav := n.normalizeNGAV(res.NGAV, raw, prov, processed)
		return common, ngav, nil
	default:
		return nil, nil, fmt.Errorf("%w: kind %s", ErrNothingToNormalize, res.Kind)
	}
}

func (n *Normalizer) parseTime(value, field string, prov Provenance) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), false
		}
	}
	n.logger.Warn("Unparseable alert timestamp, using current time",
		"field", field,
		"value", value,
		logging.Topic(prov.Topic),
		logging.Offset(prov.Offset),
	)
	return n.now(), true
}

func (n *Normalizer) normalizeEDR(e *alert.EDR, raw string, prov Provenance, processed time.Time) (*CommonAlertRecord, *EdrRecord) {
	key := e.AlertKey()
	id := RecordID(prov, key)
	created, fallback := n.parseTime(e.CreateTime, "create_time", prov)

	common := &CommonAlertRecord{
		ID:                 id,
		OriginalID:         key,
		DataType:           registry.DataTypeEDR,
		CreateTime:         created,
		CreateTimeFallback: fallback,
		DeviceID:           e.DeviceID,
		DeviceName:         e.DeviceName,
		DeviceOS:           e.DeviceOS,
		DeviceInternalIP:   e.DeviceInternalIP,
		DeviceExternalIP:   e.DeviceExternalIP,
		OrgKey:             e.OrgKey,
		Severity:           e.Severity,
		SeverityLabel:      e.SeverityLevel(),
		AlertType:          e.Type,
		DeviceUsername:     e.ProcessUsername,
		RawData:            raw,
		ProcessedTime:      processed,
		Provenance:         prov,
	}

	rec := &EdrRecord{
		ID:                id,
		AlertKey:          key,
		Schema:            e.Schema,
		CreateTime:        created,
		DeviceExternalIP:  e.DeviceExternalIP,
		DeviceID:          e.DeviceID,
		DeviceInternalIP:  e.DeviceInternalIP,
		DeviceName:        e.DeviceName,
		DeviceOS:          e.DeviceOS,
		IOCHit:            e.IOCHit,
		IOCID:             e.IOCID,
		OrgKey:            e.OrgKey,
		ParentCmdline:     e.ParentCmdline,
		ParentGUID:        e.ParentGUID,
		ParentHash:        e.ParentHash,
		ParentPath:        e.ParentPath,
		ParentPID:         e.ParentPID,
		ParentPublisher:   alert.PublisherNames(e.ParentPublisher),
		ParentReputation:  e.ParentReputation,
		ParentUsername:    e.ParentUsername,
		ProcessCmdline:    e.ProcessCmdline,
		ProcessGUID:       e.ProcessGUID,
		ProcessHash:       e.ProcessHash,
		ProcessPath:       e.ProcessPath,
		ProcessPID:        e.ProcessPID,
		ProcessPublisher:  alert.PublisherNames(e.ProcessPublisher),
		ProcessReputation: e.ProcessReputation,
		ProcessUsername:   e.ProcessUsername,
		ReportID:          e.ReportID,
		ReportName:        e.ReportName,
		ReportTags:        e.ReportTags,
		Severity:          e.Severity,
		Type:              e.Type,
		Watchlists:        alert.WatchlistNames(e.Watchlists),
		ProcessedTime:     processed,
		Provenance:        prov,
	}
	return common, rec
}

func (n *Normalizer) normalizeNGAV(a *alert.NGAV, raw string, prov Provenance, processed time.Time) (*CommonAlertRecord, *NgavRecord) {
	key := a.AlertKey()
	id := RecordID(prov, key)
	created, fallback := n.parseTime(a.CreateTime, "create_time", prov)

	common := &CommonAlertRecord{
		ID:                 id,
		OriginalID:         key,
		DataType:           registry.DataTypeNGAV,
		CreateTime:         created,
		CreateTimeFallback: fallback,
		DeviceID:           a.DeviceID,
		DeviceName:         a.DeviceName,
		DeviceOS:           a.DeviceOS,
		DeviceInternalIP:   a.DeviceInternalIP,
		DeviceExternalIP:   a.DeviceExternalIP,
		OrgKey:             a.OrgKey,
		Severity:           a.Severity,
		SeverityLabel:      a.SeverityLevel(),
		AlertType:          a.Type,
		ThreatCategory:     a.ThreatCauseThreatCategory,
		DeviceUsername:     a.DeviceUsername,
		RawData:            raw,
		ProcessedTime:      processed,
		Provenance:         prov,
	}

	rec := &NgavRecord{
		ID:                         id,
		AlertKey:                   key,
		Type:                       a.Type,
		AlertID:                    a.ID,
		LegacyAlertID:              a.LegacyAlertID,
		OrgKey:                     a.OrgKey,
		CreateTime:                 created,
		LastUpdateTime:             a.LastUpdateTime,
		FirstEventTime:             a.FirstEventTime,
		LastEventTime:              a.LastEventTime,
		ThreatID:                   a.ThreatID,
		Severity:                   a.Severity,
		Category:                   a.Category,
		DeviceID:                   a.DeviceID,
		DeviceOS:                   a.DeviceOS,
		DeviceOSVersion:            a.DeviceOSVersion,
		DeviceName:                 a.DeviceName,
		DeviceUsername:             a.DeviceUsername,
		PolicyID:                   a.PolicyID,
		PolicyName:                 a.PolicyName,
		TargetValue:                a.TargetValue,
		WorkflowState:              a.Workflow.State,
		WorkflowRemediation:        a.Workflow.Remediation,
		WorkflowLastUpdateTime:     a.Workflow.LastUpdateTime,
		WorkflowComment:            a.Workflow.Comment,
		WorkflowChangedBy:          a.Workflow.ChangedBy,
		DeviceInternalIP:           a.DeviceInternalIP,
		DeviceExternalIP:           a.DeviceExternalIP,
		AlertURL:                   a.AlertURL,
		Reason:                     a.Reason,
		ReasonCode:                 a.ReasonCode,
		ProcessName:                a.ProcessName,
		DeviceLocation:             a.DeviceLocation,
		CreatedByEventID:           a.CreatedByEventID,
		ThreatIndicators:           alert.IndicatorStrings(a.ThreatIndicators),
		MITRETTPs:                  a.MITRETTPs(),
		AffectedProcesses:          a.AffectedProcesses(),
		ThreatCauseActorSHA256:     a.ThreatCauseActorSHA256,
		ThreatCauseActorName:       a.ThreatCauseActorName,
		ThreatCauseActorProcessPID: a.ThreatCauseActorProcessPID,
		ThreatCauseReputation:      a.ThreatCauseReputation,
		ThreatCauseThreatCategory:  a.ThreatCauseThreatCategory,
		ThreatCauseVector:          a.ThreatCauseVector,
		ThreatCauseCauseEventID:    a.ThreatCauseCauseEventID,
		BlockedThreatCategory:      a.BlockedThreatCategory,
		NotBlockedThreatCategory:   a.NotBlockedThreatCategory,
		KillChainStatus:            a.KillChainStatus,
		RunState:                   a.RunState,
		PolicyApplied:              a.PolicyApplied,
		IsMalware:                  a.IsMalware(),
		IsBlocked:                  a.IsBlocked(),
		ProcessedTime:              processed,
		Provenance:                 prov,
	}
	return common, rec
}
