package provisioning

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// parseDict reads an Apple-style XML property list and returns its root
// dictionary as a tree of map[string]any/string values. Only <dict>/<key>/
// <string> elements are understood — the only shapes Apple's grandslam
// lookup and provisioning responses ever use.
func parseDict(r io.Reader) (map[string]any, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse plist: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "dict" {
			continue
		}
		return readDict(dec)
	}
}

func readDict(dec *xml.Decoder) (map[string]any, error) {
	result := make(map[string]any)
	pendingKey := ""

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse plist dict: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "key":
				text, err := readCharData(dec, "key")
				if err != nil {
					return nil, err
				}
				pendingKey = text
			case "dict":
				val, err := readDict(dec)
				if err != nil {
					return nil, err
				}
				if pendingKey != "" {
					result[pendingKey] = val
					pendingKey = ""
				}
			case "string":
				val, err := readCharData(dec, "string")
				if err != nil {
					return nil, err
				}
				if pendingKey != "" {
					result[pendingKey] = val
					pendingKey = ""
				}
			default:
				if err := skipElement(dec, t.Name.Local); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "dict" {
				return result, nil
			}
		}
	}
}

func readCharData(dec *xml.Decoder, elem string) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("parse plist %s: %w", elem, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == elem {
				return sb.String(), nil
			}
		}
	}
}

// skipElement consumes tokens through the matching end tag of a start
// element this parser doesn't understand (e.g. <array>, <true/>).
func skipElement(dec *xml.Decoder, elem string) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("skip plist element %s: %w", elem, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == elem {
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == elem {
				depth--
			}
		}
	}
	return nil
}

func dictAt(root map[string]any, key string) (map[string]any, bool) {
	v, ok := root[key]
	if !ok {
		return nil, false
	}
	d, ok := v.(map[string]any)
	return d, ok
}

func stringAt(root map[string]any, key string) (string, bool) {
	v, ok := root[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// responseString extracts root.Response[key] as a string, the shape every
// grandslam provisioning reply uses for its payload fields.
func responseString(root map[string]any, key string) (string, error) {
	response, ok := dictAt(root, "Response")
	if !ok {
		return "", fmt.Errorf("plist missing Response dictionary")
	}
	s, ok := stringAt(response, key)
	if !ok {
		return "", fmt.Errorf("plist Response missing string %q", key)
	}
	return s, nil
}
