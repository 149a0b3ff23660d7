package sqlfrag

import (
	"github.com/go-openapi/inflect"
)

// NamingStrategy maps table and column names to their database spelling.
type NamingStrategy interface {
	TableName(name string) string
	ColumnName(name string) string
}

// DefaultStrategy uses names exactly as registered.
type DefaultStrategy struct{}

func (DefaultStrategy) TableName(name string) string  { return name }
func (DefaultStrategy) ColumnName(name string) string { return name }

// SnakeCaseStrategy spells "OrderItem" as "order_item" and "contactId" as
// "contact_id".
type SnakeCaseStrategy struct{}

func (SnakeCaseStrategy) TableName(name string) string  { return inflect.Underscore(name) }
func (SnakeCaseStrategy) ColumnName(name string) string { return inflect.Underscore(name) }

// isQuoted reports whether name already carries identifier quotes.
func isQuoted(name string) bool {
	return name != "" && (name[0] == '"' || name[0] == '`')
}
