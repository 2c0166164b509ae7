package common

import "strings"

// GetSNMPResult looks up an OID in SNMP results, handling the leading dot issue.
// gosnmp returns OIDs with a leading dot (e.g., ".1.3.6.1..."), but OID constants
// typically don't have the leading dot. This function tries both formats.
func GetSNMPResult(results map[string]interface{}, oid string) (interface{}, bool) {
	if results == nil {
		return nil, false
	}
	if val, ok := results[oid]; ok {
		return val, true
	}
	if strings.HasPrefix(oid, ".") {
		val, ok := results[strings.TrimPrefix(oid, ".")]
		return val, ok
	}
	val, ok := results["."+oid]
	return val, ok
}

// SNMPString extracts a string from an SNMP value (OctetString arrives as []byte).
func SNMPString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
