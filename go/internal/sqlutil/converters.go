package sqlutil

import (
	"database/sql"
	"time"
)

// ToSqlString converts a string pointer to sql.NullString; nil maps to NULL.
func ToSqlString(val *string) sql.NullString {
	if val == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *val, Valid: true}
}

// FromSqlString converts sql.NullString back to a string pointer.
func FromSqlString(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	return &val.String
}

// ToSqlTime converts a time pointer to sql.NullTime; nil maps to NULL.
func ToSqlTime(val *time.Time) sql.NullTime {
	if val == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *val, Valid: true}
}

// FromSqlTime converts sql.NullTime back to a time pointer.
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	return &val.Time
}
