package wiki

// Helpers for pulling typed values out of decoded API responses. The
// action API is loosely shaped, so every access is defensive.

func getMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func getSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func getString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func getInt64(v interface{}) int64 {
	f, _ := v.(float64)
	return int64(f)
}
