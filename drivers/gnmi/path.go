package gnmi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"

	"github.com/nanoncore/nano-cliconf/vendors/common"
)

// ParsePath converts a string path to gNMI Path
// Supports formats:
//   - /running-config[flags=all]
//   - cli[command=show version]
func ParsePath(path string) *gnmipb.Path {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return &gnmipb.Path{}
	}

	// split on / outside of key brackets; CLI commands may contain slashes
	var elems []string
	var current strings.Builder
	inKey := false
	for _, c := range path {
		switch {
		case c == '[':
			inKey = true
			current.WriteRune(c)
		case c == ']':
			inKey = false
			current.WriteRune(c)
		case c == '/' && !inKey:
			if current.Len() > 0 {
				elems = append(elems, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(c)
		}
	}
	if current.Len() > 0 {
		elems = append(elems, current.String())
	}

	gnmiPath := &gnmipb.Path{}
	for _, elem := range elems {
		gnmiPath.Elem = append(gnmiPath.Elem, parseElem(elem))
	}
	return gnmiPath
}

func parseElem(elem string) *gnmipb.PathElem {
	idx := strings.Index(elem, "[")
	if idx == -1 {
		return &gnmipb.PathElem{Name: elem}
	}

	pathElem := &gnmipb.PathElem{Name: elem[:idx], Key: make(map[string]string)}
	keyPart := elem[idx:]
	for keyPart != "" {
		start := strings.Index(keyPart, "[")
		end := strings.Index(keyPart, "]")
		if start == -1 || end == -1 || end < start {
			break
		}
		kvPair := keyPart[start+1 : end]
		if eqIdx := strings.Index(kvPair, "="); eqIdx != -1 {
			pathElem.Key[kvPair[:eqIdx]] = strings.Trim(kvPair[eqIdx+1:], "'\"")
		}
		keyPart = keyPart[end+1:]
	}
	return pathElem
}

// PathToString converts a gNMI Path to string format. Keys are written in name order.
func PathToString(path *gnmipb.Path) string {
	if path == nil {
		return ""
	}

	parts := make([]string, 0, len(path.Elem))
	for _, elem := range path.Elem {
		part := elem.Name
		keys := make([]string, 0, len(elem.Key))
		for k := range elem.Key {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			part += fmt.Sprintf("[%s=%s]", k, elem.Key[k])
		}
		parts = append(parts, part)
	}

	s := "/" + strings.Join(parts, "/")
	if path.Origin != "" {
		s = path.Origin + ":" + s
	}
	return s
}

// joinPath appends p's elements to the request prefix
func joinPath(prefix, p *gnmipb.Path) *gnmipb.Path {
	if prefix == nil || len(prefix.Elem) == 0 && prefix.Origin == "" {
		return p
	}
	out := &gnmipb.Path{Origin: prefix.Origin, Target: prefix.Target}
	if p != nil {
		if p.Origin != "" {
			out.Origin = p.Origin
		}
		out.Elem = append(out.Elem, prefix.Elem...)
		out.Elem = append(out.Elem, p.Elem...)
	}
	return out
}

// decodeTypedValue converts a gNMI TypedValue to Go value
func decodeTypedValue(tv *gnmipb.TypedValue) interface{} {
	if tv == nil {
		return nil
	}

	switch v := tv.Value.(type) {
	case *gnmipb.TypedValue_StringVal:
		return v.StringVal
	case *gnmipb.TypedValue_AsciiVal:
		return v.AsciiVal
	case *gnmipb.TypedValue_IntVal:
		return v.IntVal
	case *gnmipb.TypedValue_UintVal:
		return v.UintVal
	case *gnmipb.TypedValue_BoolVal:
		return v.BoolVal
	case *gnmipb.TypedValue_BytesVal:
		return v.BytesVal
	case *gnmipb.TypedValue_DoubleVal:
		return v.DoubleVal
	case *gnmipb.TypedValue_LeaflistVal:
		var result []interface{}
		for _, elem := range v.LeaflistVal.Element {
			result = append(result, decodeTypedValue(elem))
		}
		return result
	case *gnmipb.TypedValue_JsonVal:
		var result interface{}
		if err := json.Unmarshal(v.JsonVal, &result); err != nil {
			return string(v.JsonVal)
		}
		return result
	case *gnmipb.TypedValue_JsonIetfVal:
		var result interface{}
		if err := json.Unmarshal(v.JsonIetfVal, &result); err != nil {
			return string(v.JsonIetfVal)
		}
		return result
	default:
		return nil
	}
}

// encodeTypedValue converts a Go value to gNMI TypedValue. Text is sent as ASCII when the
// client asked for that encoding, anything structured as JSON.
func encodeTypedValue(value interface{}, encoding gnmipb.Encoding) (*gnmipb.TypedValue, error) {
	switch v := value.(type) {
	case string:
		if encoding == gnmipb.Encoding_ASCII {
			return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_AsciiVal{AsciiVal: v}}, nil
		}
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: v}}, nil
	case bool:
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_BoolVal{BoolVal: v}}, nil
	case []byte:
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_BytesVal{BytesVal: v}}, nil
	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot encode value of type %T: %w", value, err)
		}
		if encoding == gnmipb.Encoding_JSON {
			return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_JsonVal{JsonVal: jsonBytes}}, nil
		}
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_JsonIetfVal{JsonIetfVal: jsonBytes}}, nil
	}
}

// commandLines turns a Set value into configuration lines: text is split on newlines, leaf
// lists and JSON arrays give one line per element. Blank lines are dropped.
func commandLines(tv *gnmipb.TypedValue) ([]string, error) {
	var raw []string
	switch v := decodeTypedValue(tv).(type) {
	case string:
		raw = strings.Split(common.NormalizeNewlines(v), "\n")
	case []interface{}:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("command list element %v is %T, not a string", e, e)
			}
			raw = append(raw, s)
		}
	case nil:
		return nil, fmt.Errorf("value is empty")
	default:
		return nil, fmt.Errorf("value of type %T cannot carry commands", v)
	}

	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no commands in value")
	}
	return lines, nil
}
