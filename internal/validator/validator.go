// Package validator judges whether extracted field values are plausible for
// their field names.
package validator

import (
	"net"
	"regexp"
	"strconv"
	"strings"
)

// FieldType identifies the semantic kind a validator checks.
type FieldType string

const (
	TypeIP         FieldType = "IP"
	TypePort       FieldType = "PORT"
	TypeTimestamp  FieldType = "TIMESTAMP"
	TypeProtocol   FieldType = "PROTOCOL"
	TypeAction     FieldType = "ACTION"
	TypeDeviceName FieldType = "DEVICE_NAME"
	TypeHTTPStatus FieldType = "HTTP_STATUS"
	TypeEventID    FieldType = "EVENT_ID"
)

// Func is a pure predicate over a field value.
type Func func(value string) bool

// Validator pairs a predicate with the type it checks.
type Validator struct {
	Type  FieldType
	Valid Func
}

var (
	dottedQuadRe   = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	smallIntRe     = regexp.MustCompile(`^\d{1,5}$`)
	compactTSRe    = regexp.MustCompile(`^\d{14}$`)
	isoTSRe        = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}(?:[T ]\d{1,2}:\d{2}(?::\d{2}(?:[.,]\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)?$`)
	clockRe        = regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}(?:\.\d{1,9})?$`)
	syslogTSRe     = regexp.MustCompile(`^(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2}\s+\d{1,2}:\d{2}:\d{2}$`)
	apacheTSRe     = regexp.MustCompile(`^\d{1,2}/(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)/\d{4}:\d{2}:\d{2}:\d{2}(?: [+-]\d{4})?$`)
	epochRe        = regexp.MustCompile(`^\d{10}(?:\d{3})?$`)
	protocolNameRe = regexp.MustCompile(`^(?i:tcp|udp|icmp|icmpv6|ipv6-icmp|sctp|gre|esp|ah|igmp|ip|http|https|dns|ftp|ssh|smtp|snmp|ntp|tls|ssl)$`)
	actionRe       = regexp.MustCompile(`^(?i:allow(?:ed)?|accept(?:ed)?|permit(?:ted)?|pass(?:ed)?|deny|denied|drop(?:ped)?|block(?:ed)?|reject(?:ed)?|reset|close|alert(?:ed)?|detect(?:ed)?|prevent(?:ed)?|timeout|success|fail(?:ed|ure)?|login|logout|start|stop|permit|discard(?:ed)?|bypass)$`)
	deviceNameRe   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,253}$`)
	eventIDRe      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)
	timeLikeRe     = regexp.MustCompile(`^\d{1,2}:\d{2}(?::\d{2})?`)
)

// IP accepts IPv4 and IPv6 addresses plus the "-" and "?.?.?.?" sentinels.
func IP(v string) bool {
	v = strings.TrimSpace(v)
	switch v {
	case "":
		return false
	case "-", "?.?.?.?":
		return true
	}
	if smallIntRe.MatchString(v) || timeLikeRe.MatchString(v) {
		return false
	}
	return net.ParseIP(v) != nil
}

// Port accepts 0-65535 and "-".
func Port(v string) bool {
	v = strings.TrimSpace(v)
	if v == "-" {
		return true
	}
	if v == "" || strings.ContainsAny(v, ".:") {
		return false
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= 0 && n <= 65535
}

// Timestamp accepts compact, ISO-like, clock, syslog, apache and epoch shapes.
func Timestamp(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || dottedQuadRe.MatchString(v) {
		return false
	}
	if smallIntRe.MatchString(v) {
		return false
	}
	return compactTSRe.MatchString(v) ||
		isoTSRe.MatchString(v) ||
		clockRe.MatchString(v) ||
		syslogTSRe.MatchString(v) ||
		apacheTSRe.MatchString(v) ||
		epochRe.MatchString(v)
}

// Protocol accepts well-known protocol names and IANA protocol numbers.
func Protocol(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || dottedQuadRe.MatchString(v) {
		return false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n >= 0 && n <= 255
	}
	return protocolNameRe.MatchString(v)
}

// Action accepts common firewall and security decision verbs.
func Action(v string) bool {
	v = strings.TrimSpace(v)
	return v == "-" || actionRe.MatchString(v)
}

// DeviceName accepts hostname-like identifiers that are not addresses,
// timestamps or plain numbers.
func DeviceName(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || dottedQuadRe.MatchString(v) || timeLikeRe.MatchString(v) {
		return false
	}
	if _, err := strconv.Atoi(v); err == nil {
		return false
	}
	return deviceNameRe.MatchString(v)
}

// HTTPStatus accepts 100-599.
func HTTPStatus(v string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return err == nil && n >= 100 && n <= 599
}

// EventID accepts numeric or alphanumeric identifiers that do not look like
// addresses or times.
func EventID(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || dottedQuadRe.MatchString(v) || timeLikeRe.MatchString(v) {
		return false
	}
	return eventIDRe.MatchString(v)
}

var (
	ipValidator         = Validator{Type: TypeIP, Valid: IP}
	portValidator       = Validator{Type: TypePort, Valid: Port}
	timestampValidator  = Validator{Type: TypeTimestamp, Valid: Timestamp}
	protocolValidator   = Validator{Type: TypeProtocol, Valid: Protocol}
	actionValidator     = Validator{Type: TypeAction, Valid: Action}
	deviceNameValidator = Validator{Type: TypeDeviceName, Valid: DeviceName}
	httpStatusValidator = Validator{Type: TypeHTTPStatus, Valid: HTTPStatus}
	eventIDValidator    = Validator{Type: TypeEventID, Valid: EventID}
)

// Keys are lower-case field names.
var table = map[string]Validator{
	"ip":        ipValidator,
	"src_ip":    ipValidator,
	"dst_ip":    ipValidator,
	"srcip":     ipValidator,
	"dstip":     ipValidator,
	"sip":       ipValidator,
	"dip":       ipValidator,
	"client_ip": ipValidator,
	"server_ip": ipValidator,
	"nat_ip":    ipValidator,

	"port":        portValidator,
	"src_port":    portValidator,
	"dst_port":    portValidator,
	"srcport":     portValidator,
	"dstport":     portValidator,
	"sport":       portValidator,
	"dport":       portValidator,
	"client_port": portValidator,
	"server_port": portValidator,
	"nat_port":    portValidator,

	"timestamp": timestampValidator,
	"date":      timestampValidator,
	"time":      timestampValidator,
	"datetime":  timestampValidator,
	"log_time":  timestampValidator,

	"protocol": protocolValidator,
	"proto":    protocolValidator,

	"action": actionValidator,

	"device_name": deviceNameValidator,
	"hostname":    deviceNameValidator,
	"host":        deviceNameValidator,

	"http_status":   httpStatusValidator,
	"status_code":   httpStatusValidator,
	"response_code": httpStatusValidator,

	"event_id":   eventIDValidator,
	"rule_id":    eventIDValidator,
	"session_id": eventIDValidator,
}

// Lookup returns the validator registered for a field name, matched exactly
// and case-insensitively.
func Lookup(field string) (Validator, bool) {
	v, ok := table[strings.ToLower(field)]
	return v, ok
}

// Known reports whether a validator is registered for field.
func Known(field string) bool {
	_, ok := Lookup(field)
	return ok
}

// Validate reports whether value is plausible for field. Fields without a
// registered validator always pass.
func Validate(field, value string) bool {
	v, ok := Lookup(field)
	if !ok {
		return true
	}
	return v.Valid(value)
}

// Filter returns the subset of fields that pass validation, and how many of
// the kept fields were checked by a registered validator.
func Filter(fields map[string]string) (kept map[string]string, validated int) {
	kept = make(map[string]string, len(fields))
	for name, value := range fields {
		v, ok := Lookup(name)
		if !ok {
			kept[name] = value
			continue
		}
		if v.Valid(value) {
			kept[name] = value
			validated++
		}
	}
	return kept, validated
}
