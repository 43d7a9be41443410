package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Custom serializer storing the embedded item list as a JSON column

type ItemList []Item

// Value implements the driver.Valuer interface.
// This defines how the list is stored in the database
func (l ItemList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}

	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize item list, %w", err)
	}

	return string(b), nil
}

// Scan implements the sql.Scanner interface.
// This defines how the database value is converted back into go
func (l *ItemList) Scan(value interface{}) error {
	if value == nil {
		*l = ItemList{}
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("failed to scan ItemList, %v", value)
	}

	if len(b) == 0 {
		*l = ItemList{}
		return nil
	}

	return json.Unmarshal(b, l)
}
