package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nhle/health-notify/internal/model"
)

// The backend answers either with a bare value or with the value wrapped
// in an envelope object. These helpers accept both shapes.

// unwrap returns the first present envelope field among keys, or raw
// itself when raw is not an object carrying any of them.
func unwrap(raw json.RawMessage, keys ...string) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return trimmed
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return bytes.TrimSpace(v)
		}
	}
	return trimmed
}

func decodeList(raw json.RawMessage) ([]model.Notification, error) {
	body := unwrap(raw, "data", "notifications", "items")
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []model.Notification{}, nil
	}
	var list []model.Notification
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeCount(raw json.RawMessage) (int, error) {
	body := unwrap(raw, "data", "count", "unreadCount", "unread")
	// Some deployments wrap twice: {"data": {"count": 3}}.
	body = unwrap(body, "count", "unreadCount", "unread")

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		// Strings like "3" are tolerated.
		var s string
		if json.Unmarshal(body, &s) == nil {
			return strconv.Atoi(s)
		}
		return 0, err
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("unread count %q is not an integer", n.String())
	}
	return int(v), nil
}

func decodeDetail(raw json.RawMessage) (*Detail, error) {
	body := unwrap(raw, "data", "notification")

	var n model.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, err
	}

	detail := &Detail{Notification: n}

	// The enrichment may sit next to the notification fields or next to
	// the envelope; check the notification object first.
	for _, src := range []json.RawMessage{body, bytes.TrimSpace(raw)} {
		var obj map[string]json.RawMessage
		if json.Unmarshal(src, &obj) != nil {
			continue
		}
		for _, k := range []string{"enrichment", "details", "relatedRecord"} {
			if v, ok := obj[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				detail.Enrichment = v
				return detail, nil
			}
		}
	}

	return detail, nil
}
