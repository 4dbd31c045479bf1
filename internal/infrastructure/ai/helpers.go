package ai

import "encoding/json"

func valueOrDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}

func intOrDefault(value *int, def int) int {
	if value == nil || *value <= 0 {
		return def
	}
	return *value
}

func decodeJSON(data string, out any) error {
	return json.Unmarshal([]byte(data), out)
}
