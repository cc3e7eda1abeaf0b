package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/alertstream/consumer/internal/alert"
)

// Alert shapes the generator can produce.
const (
	KindEDR     = "edr"
	KindNGAV    = "ngav"
	KindMixed   = "mixed"
	KindUnknown = "unknown"
)

var (
	osNames     = []string{"WINDOWS", "MAC", "LINUX"}
	reputations = []string{"REP_WHITE", "COMMON_WHITE_LIST", "NOT_LISTED", "KNOWN_MALWARE", "SUSPECT_MALWARE", "PUP"}
	sigStates   = []string{"FILE_SIGNATURE_STATE_SIGNED", "FILE_SIGNATURE_STATE_VERIFIED", "FILE_SIGNATURE_STATE_NOT_SIGNED"}
	watchlists  = []string{"ATT&CK Framework", "Threat Intel", "Advanced Threats", "Living off the Land"}
	reportTags  = []string{"attack", "powershell", "lateral", "persistence", "credential_access", "execution"}
	processes   = []string{"powershell.exe", "cmd.exe", "rundll32.exe", "wscript.exe", "mshta.exe", "regsvr32.exe", "certutil.exe"}
	parents     = []string{"explorer.exe", "winword.exe", "outlook.exe", "services.exe", "svchost.exe"}
	categories  = []string{"THREAT", "MONITORED"}
	reasons     = []string{"A known virus was detected", "The application attempted to invoke a command interpreter", "Ransomware-like behavior was blocked"}
	threatCats  = []string{"KNOWN_MALWARE", "NEW_MALWARE", "NON_MALWARE", "RISKY_PROGRAM"}
	vectors     = []string{"EMAIL", "WEB", "USB", "NETWORK", "UNKNOWN"}
	runStates   = []string{"RAN", "DID_NOT_RUN"}
	applied     = []string{"APPLIED", "NOT_APPLIED"}
	workflowSt  = []string{"OPEN", "DISMISSED"}
	killChain   = []string{"INSTALL_RUN", "EXECUTE_GOAL", "BREACH", "RECONNAISSANCE"}
	mitreTTPs   = []string{"MITRE_T1059_COMMAND_SCRIPT", "MITRE_T1204_USER_EXEC", "MITRE_T1055_PROCESS_INJECT", "MITRE_T1003_CREDENTIAL_DUMP"}
	plainTTPs   = []string{"RUN_CMD_SHELL", "POLICY_DENY", "FILELESS", "ENUMERATE_PROCESSES"}
)

// Generator produces realistic alert payloads from a seeded faker.
type Generator struct {
	faker  *gofakeit.Faker
	orgKey string
	now    func() time.Time
}

// NewGenerator returns a generator. A zero seed draws a random one.
func NewGenerator(seed int64) *Generator {
	f := gofakeit.New(seed)
	return &Generator{
		faker:  f,
		orgKey: strings.ToUpper(f.LetterN(8)),
		now:    time.Now,
	}
}

// Next returns a payload of the requested kind. Mixed picks EDR or NGAV at
// random.
func (g *Generator) Next(kind string) ([]byte, string, error) {
	if kind == KindMixed {
		kind = g.faker.RandomString([]string{KindEDR, KindNGAV})
	}
	var v any
	var key string
	switch kind {
	case KindEDR:
		e := g.EDR()
		v, key = e, e.AlertKey()
	case KindNGAV:
		n := g.NGAV()
		v, key = n, n.AlertKey()
	case KindUnknown:
		v = map[string]any{
			"event":     g.faker.Word(),
			"host":      g.faker.DomainName(),
			"timestamp": g.timestamp(0),
		}
		key = g.faker.UUID()
	default:
		return nil, "", fmt.Errorf("unknown alert kind %q", kind)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return payload, key, nil
}

func (g *Generator) EDR() *alert.EDR {
	f := g.faker
	user := g.user()
	process := f.RandomString(processes)
	parent := f.RandomString(parents)
	parentPID := uint32(f.Number(1000, 9999))
	deviceID := uint64(f.Number(10000, 999999))

	wl := []alert.Watchlist{{ID: f.UUID(), Name: f.RandomString(watchlists)}}
	if f.Bool() {
		wl = append(wl, alert.Watchlist{ID: f.UUID(), Name: f.RandomString(watchlists)})
	}

	reportName := fmt.Sprintf("%s %s", strings.TrimSuffix(process, ".exe"), f.RandomString([]string{"encoded command", "network beacon", "suspicious child", "credential access"}))
	return &alert.EDR{
		Schema:            1,
		CreateTime:        g.timestamp(time.Hour),
		DeviceExternalIP:  f.IPv4Address(),
		DeviceID:          deviceID,
		DeviceInternalIP:  f.IPv4Address(),
		DeviceName:        g.deviceName(),
		DeviceOS:          f.RandomString(osNames),
		IOCHit:            process + " " + f.Word(),
		IOCID:             f.UUID(),
		OrgKey:            g.orgKey,
		ParentCmdline:     `C:\Windows\` + parent,
		ParentGUID:        g.orgKey + "-" + f.LetterN(8),
		ParentHash:        []string{g.sha256(), g.sha256()},
		ParentPath:        `C:\Windows\` + parent,
		ParentPID:         parentPID,
		ParentPublisher:   []alert.Publisher{{Name: "Microsoft Windows", State: f.RandomString(sigStates)}},
		ParentReputation:  f.RandomString(reputations),
		ParentUsername:    user,
		ProcessCmdline:    process + " " + f.LetterN(12),
		ProcessGUID:       g.orgKey + "-" + f.LetterN(8),
		ProcessHash:       []string{g.sha256(), g.sha256()},
		ProcessPath:       `C:\Windows\System32\` + process,
		ProcessPID:        parentPID + uint32(f.Number(1, 500)),
		ProcessPublisher:  []alert.Publisher{{Name: f.Company(), State: f.RandomString(sigStates)}},
		ProcessReputation: f.RandomString(reputations),
		ProcessUsername:   user,
		ReportID:          f.UUID(),
		ReportName:        reportName,
		ReportTags:        g.pick(reportTags, 1, 3),
		Severity:          uint8(f.Number(1, 4)),
		Type:              "watchlist.hit",
		Watchlists:        wl,
	}
}

func (g *Generator) NGAV() *alert.NGAV {
	f := g.faker
	process := f.RandomString(processes)
	sha := g.sha256()
	created := g.timestamp(time.Hour)

	indicators := make([]alert.ThreatIndicator, f.Number(1, 3))
	for i := range indicators {
		ttps := g.pick(plainTTPs, 0, 2)
		if f.Bool() {
			ttps = append(ttps, f.RandomString(mitreTTPs))
		}
		indicators[i] = alert.ThreatIndicator{
			ProcessName: f.RandomString(processes),
			SHA256:      g.sha256(),
			TTPs:        ttps,
		}
	}

	category := f.RandomString(threatCats)
	blocked, notBlocked := "NON_MALWARE", "NON_MALWARE"
	if f.Bool() {
		blocked = category
	} else {
		notBlocked = category
	}

	return &alert.NGAV{
		Type:                       "CB_ANALYTICS",
		ID:                         f.UUID(),
		LegacyAlertID:              strings.ToUpper(f.LetterN(8)),
		OrgKey:                     g.orgKey,
		CreateTime:                 created,
		LastUpdateTime:             created,
		FirstEventTime:             created,
		LastEventTime:              created,
		ThreatID:                   g.sha256()[:32],
		Severity:                   uint8(f.Number(1, 4)),
		Category:                   f.RandomString(categories),
		DeviceID:                   uint64(f.Number(10000, 999999)),
		DeviceOS:                   f.RandomString(osNames),
		DeviceOSVersion:            "Windows 10 x64",
		DeviceName:                 g.deviceName(),
		DeviceUsername:             f.Email(),
		PolicyID:                   uint64(f.Number(1000, 9999)),
		PolicyName:                 f.RandomString([]string{"Standard", "Advanced", "Monitored"}),
		TargetValue:                f.RandomString([]string{"LOW", "MEDIUM", "HIGH", "MISSION_CRITICAL"}),
		Workflow:                   alert.Workflow{State: f.RandomString(workflowSt), Remediation: "", LastUpdateTime: created, Comment: "", ChangedBy: "system"},
		DeviceInternalIP:           f.IPv4Address(),
		DeviceExternalIP:           f.IPv4Address(),
		AlertURL:                   "https://defense.example.com/alerts?s[c][query_string]=id:" + f.UUID(),
		Reason:                     f.RandomString(reasons),
		ReasonCode:                 "R_" + strings.ToUpper(f.LetterN(6)),
		ProcessName:                process,
		DeviceLocation:             f.RandomString([]string{"ONSITE", "OFFSITE", "UNKNOWN"}),
		CreatedByEventID:           f.UUID(),
		ThreatIndicators:           indicators,
		ThreatCauseActorSHA256:     sha,
		ThreatCauseActorName:       process,
		ThreatCauseActorProcessPID: fmt.Sprintf("%d-%d", f.Number(1000, 9999), f.Number(100000, 999999)),
		ThreatCauseReputation:      f.RandomString(reputations),
		ThreatCauseThreatCategory:  category,
		ThreatCauseVector:          f.RandomString(vectors),
		ThreatCauseCauseEventID:    f.UUID(),
		BlockedThreatCategory:      blocked,
		NotBlockedThreatCategory:   notBlocked,
		KillChainStatus:            g.pick(killChain, 1, 2),
		RunState:                   f.RandomString(runStates),
		PolicyApplied:              f.RandomString(applied),
	}
}

func (g *Generator) timestamp(spread time.Duration) string {
	t := g.now().UTC()
	if spread > 0 {
		t = t.Add(-time.Duration(g.faker.Int64() % int64(spread)).Abs())
	}
	return t.Format(time.RFC3339Nano)
}

func (g *Generator) deviceName() string {
	return g.faker.RandomString([]string{"WS", "LAPTOP", "SRV", "DC"}) + "-" + fmt.Sprintf("%03d", g.faker.Number(1, 999))
}

func (g *Generator) user() string {
	return "CORP\\" + g.faker.Username()
}

func (g *Generator) sha256() string {
	sum := sha256.Sum256([]byte(g.faker.UUID()))
	return hex.EncodeToString(sum[:])
}

// pick returns between min and max distinct entries of from.
func (g *Generator) pick(from []string, min, max int) []string {
	n := g.faker.Number(min, max)
	idx := make([]int, len(from))
	for i := range idx {
		idx[i] = i
	}
	g.faker.ShuffleInts(idx)
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, from[i])
	}
	return out
}
