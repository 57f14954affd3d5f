package sparse

import "strconv"

// Log maps metric names to scalar or list values for one epoch
type Log map[string]interface{}

// Float returns a numeric entry as float64
func (l Log) Float(key string) (float64, bool) {
	switch v := l[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// layerKey builds per-layer keys such as "sparse_level_l0"
func layerKey(name string, idx int) string {
	return name + "_l" + strconv.Itoa(idx)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
