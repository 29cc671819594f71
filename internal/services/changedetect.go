package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Canned phrases for the well-known record sections. Anything else falls
// through to a synthesized "<Capitalized key> updated".
var sectionPhrases = map[string]string{
	"personalDetails":    "Personal details updated",
	"addressInformation": "Address information updated",
	"contactInformation": "Contact information updated",
	"consent":            "Consent updated",
	"medicalInformation": "Medical information updated",
	"preferences":        "Preferences updated",
}

// DetectChangedSection walks the patch's top-level keys in document order and
// returns the FIRST key whose value differs from the old document, stopping
// there. Object-valued keys with an existing old value are compared one
// sub-key deep; everything else compares by serialized value. Reporting only
// the first differing section is the contract: later changed sections are
// intentionally not reported, so resist turning this into a multi-section
// diff.
func DetectChangedSection(old, patch []byte) (string, bool) {
	keys, err := topLevelKeys(patch)
	if err != nil || len(keys) == 0 {
		return "", false
	}

	var patchDoc map[string]json.RawMessage
	if err := json.Unmarshal(patch, &patchDoc); err != nil {
		return "", false
	}
	oldDoc := map[string]json.RawMessage{}
	if len(old) > 0 {
		_ = json.Unmarshal(old, &oldDoc)
	}

	for _, key := range keys {
		patchVal := patchDoc[key]
		oldVal, hasOld := oldDoc[key]

		var patchObj map[string]json.RawMessage
		if hasOld && !isNull(patchVal) && json.Unmarshal(patchVal, &patchObj) == nil && patchObj != nil {
			var oldObj map[string]json.RawMessage
			_ = json.Unmarshal(oldVal, &oldObj)
			for sub, subVal := range patchObj {
				if !rawEqual(subVal, oldObj[sub]) {
					return key, true
				}
			}
			continue
		}

		if !hasOld || !rawEqual(patchVal, oldVal) {
			return key, true
		}
	}
	return "", false
}

// DescribeChange produces the single human-readable summary for a patch
// against an old record. recordType names the record kind for the generic
// fallback, e.g. "client record".
func DescribeChange(old, patch []byte, recordType string) string {
	section, found := DetectChangedSection(old, patch)
	if !found {
		return fmt.Sprintf("Updated %s", recordType)
	}
	if phrase, ok := sectionPhrases[section]; ok {
		return phrase
	}
	return fmt.Sprintf("%s updated", capitalize(section))
}

// topLevelKeys returns the object's keys in document order, which Go maps do
// not preserve; the token stream does.
func topLevelKeys(doc []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func rawEqual(a, b json.RawMessage) bool {
	return bytes.Equal(compactRaw(a), compactRaw(b))
}

func compactRaw(raw json.RawMessage) []byte {
	if raw == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	return string(unicode.ToUpper(runes[0])) + strings.TrimPrefix(s, string(runes[0]))
}
