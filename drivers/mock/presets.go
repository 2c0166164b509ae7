package mock

import (
	"fmt"
	"strings"

	"github.com/nanoncore/nano-cliconf/types"
)

var ciscoLikeTransitions = map[string]Transition{
	"enable":             {From: types.ModeUnprivileged, To: types.ModePrivileged},
	"disable":            {From: types.ModePrivileged, To: types.ModeUnprivileged},
	"configure terminal": {From: types.ModePrivileged, To: types.ModeConfiguration},
	"end":                {From: types.ModeConfiguration, To: types.ModePrivileged},
}

func cloneTransitions(src map[string]Transition) map[string]Transition {
	dst := make(map[string]Transition, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// OS10 returns a Dell OS10 switch logged in at the unprivileged prompt
func OS10(hostname string) *Device {
	return NewDevice(OS10Config(hostname))
}

// OS10Config is the configuration behind OS10, for tests that tweak it
func OS10Config(hostname string) Config {
	if hostname == "" {
		hostname = "leaf1"
	}
	return Config{
		Hostname:    hostname,
		Prompts:     [3]string{"%s>", "%s#", "%s(config)#"},
		InitialMode: types.ModeUnprivileged,
		Transitions: cloneTransitions(ciscoLikeTransitions),
		Responses: map[string]string{
			"terminal length 0": "",
			"show version":      os10Version,
			"show running-configuration | grep hostname": "hostname " + hostname,
			"show running-config all":                    fmt.Sprintf(os10Running, hostname),
			"show startup-config":                        fmt.Sprintf(os10Startup, hostname),
			"show clock":                                 "12:00:01.042 UTC Fri Oct 16 2026",
		},
		Failures:  map[string]string{},
		Dialogs:   map[string][]string{},
		Silent:    map[string]bool{},
		ErrorText: "% Error: Unrecognized command.",
	}
}

// VRP returns a Huawei VRP switch at the user view prompt
func VRP(hostname string) *Device {
	if hostname == "" {
		hostname = "HUAWEI"
	}
	return NewDevice(Config{
		Hostname:    hostname,
		Prompts:     [3]string{"<%s>", "<%s>", "[~%s]"},
		InitialMode: types.ModeUnprivileged,
		// the privileged hop is implicit, so system-view is accepted from the user view
		Transitions: map[string]Transition{
			"system-view": {From: types.ModeUnprivileged, To: types.ModeConfiguration},
			"return":      {From: types.ModeConfiguration, To: types.ModeUnprivileged},
		},
		Responses: map[string]string{
			"screen-length 0 temporary": "Info: The configuration takes effect on the current user terminal interface only.",
			"display version":           vrpVersion,
			"display current-configuration | include sysname": " sysname " + hostname,
			"display current-configuration":                    fmt.Sprintf("#\n sysname %s\n#\nreturn", hostname),
			"display saved-configuration":                      fmt.Sprintf("#\n sysname %s\n#\nreturn", hostname),
		},
		ErrorText: "Error: Unrecognized command found at '^' position.",
	})
}

// Generic returns a Cisco style shell, used for families without a dedicated preset
func Generic(hostname string) *Device {
	if hostname == "" {
		hostname = "mock"
	}
	return NewDevice(Config{
		Hostname:    hostname,
		Prompts:     [3]string{"%s>", "%s#", "%s(config)#"},
		InitialMode: types.ModeUnprivileged,
		Transitions: cloneTransitions(ciscoLikeTransitions),
		Responses: map[string]string{
			"terminal length 0":   "",
			"terminal width 512":  "",
			"show version":        genericVersion,
			"show hostname":       "Hostname: " + hostname,
			"show running-config": fmt.Sprintf("hostname %s\n!\nend", hostname),
			"show startup-config": fmt.Sprintf("hostname %s\n!\nend", hostname),
			"show running-config | include hostname": "hostname " + hostname,
		},
	})
}

// ForDialect returns the preset matching a dialect family name
func ForDialect(dialect, hostname string) *Device {
	switch strings.ToLower(dialect) {
	case "os10":
		return OS10(hostname)
	case "vrp":
		return VRP(hostname)
	default:
		return Generic(hostname)
	}
}

const os10Version = `Dell EMC Networking OS10 Enterprise
Copyright (c) 1999-2020 by Dell Inc. All Rights Reserved.
OS Version 10.4.3.1
Build Version: 10.4.3.1.154
Build Time: 2020-03-19T02:39:29+0000
System Type S5248F-ON
Architecture: x86_64
Up Time: 3 weeks 2 days 04:11:52`

const os10Running = `! Version 10.4.3.1
! Last configuration change at Oct  16 09:12:44 2026
!
hostname %s
interface ethernet1/1/1
 no shutdown
 switchport access vlan 1
!
interface vlan1
 no shutdown`

const os10Startup = `! Version 10.4.3.1
!
hostname %s
interface vlan1
 no shutdown`

const vrpVersion = `Huawei Versatile Routing Platform Software
VRP (R) software, Version 8.180 (CE6850 V200R005C10SPC800)
Copyright (C) 2012-2018 Huawei Technologies Co., Ltd.
HUAWEI CE6850-48S6Q-HI uptime is 12 days, 3 hours, 41 minutes`

const genericVersion = `Mock CLI Simulator
Software Version: 1.0.0
Device Model: MOCK-SIM-001
Uptime: 10 days, 5:30:22`
