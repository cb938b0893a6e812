package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/brokerwatch/internal/tokens"
)

// Fields is one flat broker record with every value rendered as a string.
// KIS sends numbers as strings and LS sends JSON numbers, so both collapse here.
type Fields map[string]string

// Get returns the trimmed value for key, or "" when absent
func (f Fields) Get(key string) string {
	return strings.TrimSpace(f[key])
}

// Decimal parses a numeric field. Thousands separators are ignored and a
// blank or missing value is zero.
func (f Fields) Decimal(key string) (decimal.Decimal, error) {
	return ParseDecimal(f[key])
}

// ParseDecimal parses a broker number ("1,000,000", "+12.5", "") leniently
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

// BalancePayload is a raw balance inquiry result in broker field names
type BalancePayload struct {
	Holdings []Fields
	Summary  Fields
}

// TradePayload is a raw trade-history result in broker field names
type TradePayload struct {
	Entries []Fields
	Summary Fields
}

// Status is a broker business result reduced to pass/fail
type Status struct {
	OK      bool
	Code    string
	Message string
}

// KISStatus interprets rt_cd, where "0" is the only success value
func KISStatus(rtCd, msgCd, msg string) Status {
	code := strings.TrimSpace(rtCd)
	if code != "0" && msgCd != "" {
		code = code + "/" + msgCd
	}
	return Status{OK: strings.TrimSpace(rtCd) == "0", Code: code, Message: strings.TrimSpace(msg)}
}

// LSStatus interprets rsp_cd, where "00000" is the only success value
func LSStatus(rspCd, msg string) Status {
	code := strings.TrimSpace(rspCd)
	return Status{OK: code == "00000", Code: code, Message: strings.TrimSpace(msg)}
}

// FormatDate renders t as the YYYYMMDD date it falls on in KST
func FormatDate(t time.Time) string {
	return t.In(tokens.KST).Format("20060102")
}

// NormalizeDate strips separators from a date string ("2026-03-02" -> "20260302")
func NormalizeDate(s string) string {
	return strings.NewReplacer("-", "", "/", "", ".", "").Replace(strings.TrimSpace(s))
}

// FlattenObject converts a JSON object into Fields. null and empty input yield an empty map.
func FlattenObject(raw json.RawMessage) (Fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Fields{}, nil
	}
	// Some endpoints wrap a single summary object in an array
	if raw[0] == '[' {
		list, err := FlattenList(raw)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return Fields{}, nil
		}
		return list[0], nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}

	out := make(Fields, len(obj))
	for k, v := range obj {
		out[k] = scalarString(v)
	}
	return out, nil
}

// FlattenList converts a JSON array of objects into Fields. A bare object is
// treated as a one-element list.
func FlattenList(raw json.RawMessage) ([]Fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		obj, err := FlattenObject(raw)
		if err != nil {
			return nil, err
		}
		return []Fields{obj}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}

	out := make([]Fields, 0, len(items))
	for _, item := range items {
		obj, err := FlattenObject(item)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func scalarString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	// numbers, booleans and nested values keep their JSON text
	return string(v)
}
