package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// ForUpdateNoWait appends a row lock that fails immediately instead of waiting
func ForUpdateNoWait(sb *sqlbuilder.SelectBuilder) *sqlbuilder.SelectBuilder {
	sb.SQL("FOR UPDATE NOWAIT")
	return sb
}
