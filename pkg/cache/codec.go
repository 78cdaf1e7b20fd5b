package cache

import "encoding/json"

func encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decode(b []byte, dst interface{}) error {
	return json.Unmarshal(b, dst)
}
