package service

import (
	"strconv"
	"strings"

	"github.com/mdlh/query-server-go/internal/warehouse"
)

// colIndex finds a column by case-insensitive name, -1 when absent. SHOW and
// DESCRIBE output column names vary in case across warehouse versions.
func colIndex(rs *warehouse.Resultset, name string) int {
	for i, c := range rs.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func cellString(row []any, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func cellInt64Ptr(row []any, idx int) *int64 {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return nil
	}
	switch v := row[idx].(type) {
	case int64:
		n := v
		return &n
	case float64:
		n := int64(v)
		return &n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

func cellBool(row []any, idx int) bool {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return false
	}
	switch v := row[idx].(type) {
	case bool:
		return v
	case string:
		s := strings.ToUpper(strings.TrimSpace(v))
		return s == "Y" || s == "YES" || s == "TRUE"
	default:
		return false
	}
}
