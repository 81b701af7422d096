package ml

import (
	"encoding/json"
	"os"
)

// writeJSON replaces path atomically so a watching server never reads a
// half-written file.
func writeJSON(path string, v interface{}, indent string) error {
	var (
		payload []byte
		err     error
	)
	if indent == "" {
		payload, err = json.Marshal(v)
	} else {
		payload, err = json.MarshalIndent(v, "", indent)
	}
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
