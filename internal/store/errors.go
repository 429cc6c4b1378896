package store

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// MySQL server error numbers for rejected rows.
const (
	mysqlBadNull         = 1048
	mysqlDupEntry        = 1062
	mysqlNoDefault       = 1364
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlDupEntryWithKey = 1586
	mysqlCheckViolated   = 3819
)

// IsConstraintViolation reports whether err is the database rejecting a row
// for a NOT NULL, UNIQUE, CHECK or foreign key constraint.
func IsConstraintViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlBadNull, mysqlDupEntry, mysqlNoDefault, mysqlRowIsReferenced,
			mysqlNoReferencedRow, mysqlDupEntryWithKey, mysqlCheckViolated:
			return true
		}
	}
	return false
}
