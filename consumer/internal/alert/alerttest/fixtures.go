// Package alerttest provides canned alert payloads for tests.
package alerttest

import "encoding/json"

// EDRFields returns a complete EDR alert as a mutable map.
func EDRFields() map[string]any {
	return map[string]any{
		"schema":             1,
		"create_time":        "2024-03-05T10:15:30.123Z",
		"device_external_ip": "203.0.113.7",
		"device_id":          98765,
		"device_internal_ip": "10.0.0.12",
		"device_name":        "WS-042",
		"device_os":          "WINDOWS",
		"ioc_hit":            "powershell.exe -enc",
		"ioc_id":             "ioc-77",
		"org_key":            "ORG1",
		"parent_cmdline":     "C:\\Windows\\explorer.exe",
		"parent_guid":        "ORG1-0001-0002",
		"parent_hash":        []string{"aa11", "bb22"},
		"parent_path":        "C:\\Windows\\explorer.exe",
		"parent_pid":         4120,
		"parent_publisher":   []map[string]string{{"name": "Microsoft Windows", "state": "FILE_SIGNATURE_STATE_VERIFIED"}},
		"parent_reputation":  "REP_WHITE",
		"parent_username":    "CORP\\alice",
		"process_cmdline":    "powershell.exe -enc SQBFAFgA",
		"process_guid":       "ORG1-0001-0003",
		"process_hash":       []string{"cc33", "dd44"},
		"process_path":       "C:\\Windows\\System32\\WindowsPowerShell\\v1.0\\powershell.exe",
		"process_pid":        5232,
		"process_publisher":  []map[string]string{{"name": "Microsoft Corporation", "state": "FILE_SIGNATURE_STATE_SIGNED"}},
		"process_reputation": "REP_WHITE",
		"process_username":   "CORP\\alice",
		"report_id":          "rpt-123",
		"report_name":        "Encoded PowerShell",
		"report_tags":        []string{"attack", "powershell"},
		"severity":           2,
		"type":               "watchlist.hit",
		"watchlists":         []map[string]string{{"id": "wl-1", "name": "ATT&CK Framework"}, {"id": "wl-2", "name": "Threat Intel"}},
	}
}

// NGAVFields returns a complete NGAV alert as a mutable map.
func NGAVFields() map[string]any {
	return map[string]any{
		"type":              "CB_ANALYTICS",
		"id":                "alert-9f2",
		"legacy_alert_id":   "LEG-1",
		"org_key":           "ORG1",
		"create_time":       "2024-03-05T11:00:00Z",
		"last_update_time":  "2024-03-05T11:05:00Z",
		"first_event_time":  "2024-03-05T10:59:00Z",
		"last_event_time":   "2024-03-05T11:01:00Z",
		"threat_id":         "thr-55",
		"severity":          1,
		"category":          "THREAT",
		"device_id":         12345,
		"device_os":         "WINDOWS",
		"device_os_version": "Windows 10 x64",
		"device_name":       "LAPTOP-7",
		"device_username":   "bob@corp.example",
		"policy_id":         6525,
		"policy_name":       "Standard",
		"target_value":      "HIGH",
		"workflow": map[string]string{
			"state":            "OPEN",
			"remediation":      "",
			"last_update_time": "2024-03-05T11:05:00Z",
			"comment":          "",
			"changed_by":       "system",
		},
		"device_internal_ip":  "10.1.2.3",
		"device_external_ip":  "198.51.100.4",
		"alert_url":           "https://defense.example/alerts/alert-9f2",
		"reason":              "A known virus was detected",
		"reason_code":         "R_VIRUS",
		"process_name":        "evil.exe",
		"device_location":     "OFFSITE",
		"created_by_event_id": "evt-1",
		"threat_indicators": []map[string]any{
			{"process_name": "evil.exe", "sha256": "ee55", "ttps": []string{"MITRE_T1059_COMMAND_SCRIPT", "RUN_MALWARE_APP"}},
			{"process_name": "cmd.exe", "sha256": "ff66", "ttps": []string{"POLICY_DENY"}},
			{"process_name": "evil.exe", "sha256": "ee55", "ttps": []string{"MITRE_T1204_USER_EXEC"}},
		},
		"threat_cause_actor_sha256":      "ee55",
		"threat_cause_actor_name":        "evil.exe",
		"threat_cause_actor_process_pid": "7788-1",
		"threat_cause_reputation":        "KNOWN_MALWARE",
		"threat_cause_threat_category":   "KNOWN_MALWARE",
		"threat_cause_vector":            "EMAIL",
		"threat_cause_cause_event_id":    "evt-0",
		"blocked_threat_category":        "KNOWN_MALWARE",
		"not_blocked_threat_category":    "UNKNOWN",
		"kill_chain_status":              []string{"INSTALL_RUN"},
		"run_state":                      "RAN",
		"policy_applied":                 "APPLIED",
	}
}

// JSON marshals fields, panicking on error.
func JSON(fields map[string]any) []byte {
	b, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	return b
}

// EDR returns a complete EDR payload.
func EDR() []byte { return JSON(EDRFields()) }

// NGAV returns a complete NGAV payload.
func NGAV() []byte { return JSON(NGAVFields()) }
