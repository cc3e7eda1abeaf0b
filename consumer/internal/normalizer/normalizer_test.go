package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/alert"
	"github.com/telhawk-systems/alertstream/consumer/internal/alert/alerttest"
	"github.com/telhawk-systems/alertstream/consumer/internal/classifier"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	n := New(logging.Discard())
	n.now = func() time.Time { return fixedNow }
	return n
}

func classify(t *testing.T, raw []byte, declared registry.DataType) classifier.Result {
	t.Helper()
	doc, err := alert.Decode(raw)
	require.NoError(t, err)
	res, err := classifier.Classify(doc, declared)
	require.NoError(t, err)
	return res
}

var prov = Provenance{
	SourceID:   "6b7c1b0e-0000-4000-8000-000000000001",
	SourceName: "edr-prod",
	Topic:      "alerts.edr",
	Partition:  3,
	Offset:     1042,
}

func TestNormalize_EDRRoundTrip(t *testing.T) {
	raw := alerttest.EDR()
	res := classify(t, raw, registry.DataTypeNone)

	common, specific, err := newTestNormalizer().Normalize(res, string(raw), prov)
	require.NoError(t, err)

	assert.Equal(t, registry.DataTypeEDR, common.DataType)
	assert.Equal(t, "WS-042_rpt-123", common.OriginalID)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 15, 30, 123000000, time.UTC), common.CreateTime)
	assert.False(t, common.CreateTimeFallback)
	assert.Equal(t, uint64(98765), common.DeviceID)
	assert.Equal(t, "ORG1", common.OrgKey)
	assert.Equal(t, uint8(2), common.Severity)
	assert.Equal(t, "high", common.SeverityLabel)
	assert.Equal(t, "watchlist.hit", common.AlertType)
	assert.Empty(t, common.ThreatCategory)
	assert.Equal(t, "CORP\\alice", common.DeviceUsername)
	assert.Equal(t, string(raw), common.RawData)
	assert.Equal(t, fixedNow, common.ProcessedTime)
	assert.Equal(t, prov, common.Provenance)

	edr, ok := specific.(*EdrRecord)
	require.True(t, ok)
	assert.Equal(t, common.ID, edr.RecordID())
	assert.Equal(t, registry.DataTypeEDR, edr.DataType())

	src := alerttest.EDRFields()
	assert.Equal(t, src["process_path"], edr.ProcessPath)
	assert.Equal(t, src["process_cmdline"], edr.ProcessCmdline)
	assert.Equal(t, src["process_guid"], edr.ProcessGUID)
	assert.Equal(t, src["process_hash"], edr.ProcessHash)
	assert.Equal(t, src["process_username"], edr.ProcessUsername)
	assert.Equal(t, src["parent_path"], edr.ParentPath)
	assert.Equal(t, src["parent_cmdline"], edr.ParentCmdline)
	assert.Equal(t, src["parent_hash"], edr.ParentHash)
	assert.Equal(t, uint32(4120), edr.ParentPID)
	assert.Equal(t, []string{"Microsoft Windows"}, edr.ParentPublisher)
	assert.Equal(t, []string{"Microsoft Corporation"}, edr.ProcessPublisher)
	assert.Equal(t, []string{"ATT&CK Framework", "Threat Intel"}, edr.Watchlists)
	assert.Equal(t, prov, edr.Provenance)
}

func TestNormalize_NGAV(t *testing.T) {
	raw := alerttest.NGAV()
	res := classify(t, raw, registry.DataTypeNGAV)

	common, specific, err := newTestNormalizer().Normalize(res, string(raw), prov)
	require.NoError(t, err)

	assert.Equal(t, registry.DataTypeNGAV, common.DataType)
	assert.Equal(t, "LAPTOP-7_alert-9f2", common.OriginalID)
	assert.Equal(t, "KNOWN_MALWARE", common.ThreatCategory)
	assert.Equal(t, "bob@corp.example", common.DeviceUsername)
	assert.Equal(t, "critical", common.SeverityLabel)

	ngav, ok := specific.(*NgavRecord)
	require.True(t, ok)
	assert.Equal(t, common.ID, ngav.ID)
	assert.Equal(t, "OPEN", ngav.WorkflowState)
	assert.Equal(t, "system", ngav.WorkflowChangedBy)
	assert.Equal(t, []string{"evil.exe:ee55", "cmd.exe:ff66", "evil.exe:ee55"}, ngav.ThreatIndicators)
	assert.Equal(t, []string{"MITRE_T1059_COMMAND_SCRIPT", "MITRE_T1204_USER_EXEC"}, ngav.MITRETTPs)
	assert.Equal(t, []string{"cmd.exe", "evil.exe"}, ngav.AffectedProcesses)
	assert.Equal(t, uint64(6525), ngav.PolicyID)
	assert.True(t, ngav.IsMalware)
	assert.True(t, ngav.IsBlocked)
}

func TestNormalize_TimestampFallback(t *testing.T) {
	fields := alerttest.EDRFields()
	fields["create_time"] = "yesterday-ish"
	raw := alerttest.JSON(fields)

	common, specific, err := newTestNormalizer().Normalize(classify(t, raw, registry.DataTypeEDR), string(raw), prov)
	require.NoError(t, err)
	assert.True(t, common.CreateTimeFallback)
	assert.Equal(t, fixedNow, common.CreateTime)
	assert.Equal(t, fixedNow, specific.(*EdrRecord).CreateTime)
}

func TestNormalize_Unrecognized(t *testing.T) {
	_, _, err := newTestNormalizer().Normalize(classifier.Result{Kind: classifier.KindUnrecognized}, "{}", prov)
	assert.ErrorIs(t, err, ErrNothingToNormalize)
}

func TestRecordID(t *testing.T) {
	a := RecordID(prov, "k")
	assert.Equal(t, a, RecordID(prov, "k"), "same position and key must map to the same ID")

	other := prov
	other.Offset++
	assert.NotEqual(t, a, RecordID(other, "k"))
	assert.NotEqual(t, a, RecordID(prov, "k2"))
}
