package repository

import "encoding/json"

// jsonOrEmpty 空 JSON 写入为 '{}'
func jsonOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
