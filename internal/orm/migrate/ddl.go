// Package migrate creates the tables backing the registered resource
// schemas. Statements are idempotent (IF NOT EXISTS) so creating an
// existing database again is a no-op.
package migrate

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// Dialect selects the column types and key syntax of a database
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// DialectFor maps a database/sql driver name to its dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("no DDL dialect for driver %q", driver)
	}
}

// Statement is one DDL statement and the table it concerns
type Statement struct {
	Table string
	SQL   string
}

// Generator renders DDL for the schemas of a registry
type Generator struct {
	schemas *schema.Registry
	dialect Dialect
}

// NewGenerator creates a generator for schemas in dialect
func NewGenerator(schemas *schema.Registry, dialect Dialect) *Generator {
	return &Generator{schemas: schemas, dialect: dialect}
}

// Dialect returns the dialect statements are rendered in
func (g *Generator) Dialect() Dialect {
	return g.dialect
}

// Statements returns the CREATE TABLE and CREATE INDEX statements of every
// resource, referenced tables before the tables holding foreign keys to
// them. Join tables come last.
func (g *Generator) Statements() ([]Statement, error) {
	if err := g.schemas.ValidateAll(); err != nil {
		return nil, err
	}
	order, err := Order(g.schemas)
	if err != nil {
		return nil, err
	}

	var stmts []Statement
	for _, name := range order {
		rs, _ := g.schemas.Get(name)
		table, err := g.CreateTable(rs)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, Statement{Table: rs.TableName, SQL: table})
		for _, idx := range g.Indexes(rs) {
			stmts = append(stmts, Statement{Table: rs.TableName, SQL: idx})
		}
	}

	joins, err := g.joinTables(order)
	if err != nil {
		return nil, err
	}
	return append(stmts, joins...), nil
}

// CreateTable renders the CREATE TABLE statement of a resource: the primary
// key first, then the columns in declaration order, then the foreign keys
// of its belongs_to associations and of the has_one and has_many
// associations targeting it.
func (g *Generator) CreateTable(rs *schema.ResourceSchema) (string, error) {
	if rs == nil {
		return "", fmt.Errorf("resource cannot be nil")
	}
	pk, err := rs.GetPrimaryKey()
	if err != nil {
		return "", fmt.Errorf("%s: %w", rs.Name, err)
	}

	defs := []string{g.primaryKey(pk)}
	for _, name := range rs.FieldNames() {
		f := rs.Fields[name]
		if f == pk {
			continue
		}
		def, err := g.column(f)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", rs.Name, name, err)
		}
		defs = append(defs, def)
	}

	for _, ref := range references(g.schemas)[rs.Name] {
		def, err := g.foreignKey(ref)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", rs.Name, ref.column, err)
		}
		defs = append(defs, def)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdentifier(rs.TableName))
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String(), nil
}

// Indexes renders an index per field flagged index or unique and per
// foreign key column
func (g *Generator) Indexes(rs *schema.ResourceSchema) []string {
	var out []string
	for _, name := range rs.FieldNames() {
		f := rs.Fields[name]
		if f.IsPrimary() {
			continue
		}
		for _, a := range f.Annotations {
			switch a.Name {
			case "unique":
				out = append(out, createIndex(rs.TableName, f.ColumnName(), true))
			case "index":
				out = append(out, createIndex(rs.TableName, f.ColumnName(), false))
			}
		}
	}
	for _, ref := range references(g.schemas)[rs.Name] {
		out = append(out, createIndex(rs.TableName, ref.column, false))
	}
	return out
}

func createIndex(table, column string, unique bool) string {
	if unique {
		return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s);",
			QuoteIdentifier(fmt.Sprintf("idx_%s_%s_unique", table, column)), QuoteIdentifier(table), QuoteIdentifier(column))
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
		QuoteIdentifier(fmt.Sprintf("idx_%s_%s", table, column)), QuoteIdentifier(table), QuoteIdentifier(column))
}

func (g *Generator) primaryKey(f *schema.Field) string {
	col := QuoteIdentifier(f.ColumnName())
	switch {
	case g.dialect == SQLite && f.Type.IsInteger():
		return col + " INTEGER PRIMARY KEY AUTOINCREMENT"
	case g.dialect == Postgres && f.Type.BaseType == schema.TypeInt:
		return col + " SERIAL PRIMARY KEY"
	case g.dialect == Postgres && f.Type.BaseType == schema.TypeBigInt:
		return col + " BIGSERIAL PRIMARY KEY"
	case g.dialect == Postgres && f.Type.BaseType == schema.TypeUUID:
		return col + " UUID PRIMARY KEY DEFAULT gen_random_uuid()"
	}
	typ, _ := g.columnType(f.Type)
	return col + " " + typ + " PRIMARY KEY"
}

func (g *Generator) column(f *schema.Field) (string, error) {
	typ, err := g.columnType(f.Type)
	if err != nil {
		return "", err
	}
	col := QuoteIdentifier(f.ColumnName())
	parts := []string{col, typ}
	if f.Type.Nullable {
		parts = append(parts, "NULL")
	} else {
		parts = append(parts, "NOT NULL")
	}
	if len(f.Type.EnumValues) > 0 {
		values := make([]string, len(f.Type.EnumValues))
		for i, v := range f.Type.EnumValues {
			values[i] = QuoteLiteral(v)
		}
		parts = append(parts, fmt.Sprintf("CHECK (%s IN (%s))", col, strings.Join(values, ", ")))
	}
	return strings.Join(parts, " "), nil
}

// foreignKey renders a foreign key column. Deleting a referenced row is
// refused while rows still point at it unless the column is nullable.
func (g *Generator) foreignKey(ref reference) (string, error) {
	target, ok := g.schemas.Get(ref.target)
	if !ok {
		return "", fmt.Errorf("unknown resource %s", ref.target)
	}
	pk, err := target.GetPrimaryKey()
	if err != nil {
		return "", fmt.Errorf("%s: %w", target.Name, err)
	}
	typ, err := g.columnType(pk.Type)
	if err != nil {
		return "", err
	}

	parts := []string{QuoteIdentifier(ref.column), typ}
	onDelete := "RESTRICT"
	if ref.nullable {
		parts = append(parts, "NULL")
		onDelete = "SET NULL"
	} else {
		parts = append(parts, "NOT NULL")
	}
	parts = append(parts, fmt.Sprintf("REFERENCES %s (%s) ON DELETE %s",
		QuoteIdentifier(target.TableName), QuoteIdentifier(pk.ColumnName()), onDelete))
	return strings.Join(parts, " "), nil
}

// joinTables renders the join table of every has_many_through association
// once, whichever side declares it
func (g *Generator) joinTables(order []string) ([]Statement, error) {
	seen := make(map[string]bool)
	var out []Statement
	for _, name := range order {
		rs, _ := g.schemas.Get(name)
		for _, relName := range rs.RelationshipNames() {
			rel := rs.Relationships[relName]
			if rel.Type != schema.RelationshipHasManyThrough || seen[rel.JoinTable] {
				continue
			}
			seen[rel.JoinTable] = true

			target, _ := g.schemas.Get(rel.TargetResource)
			ownerCol, err := g.joinColumn(rs, rel.AssociationKey, schema.ToSnakeCase(rs.Name)+"_id")
			if err != nil {
				return nil, err
			}
			targetCol, err := g.joinColumn(target, rel.InverseKey, schema.ToSnakeCase(target.Name)+"_id")
			if err != nil {
				return nil, err
			}

			sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s,\n  %s,\n  PRIMARY KEY (%s, %s)\n);",
				QuoteIdentifier(rel.JoinTable), ownerCol.def, targetCol.def,
				QuoteIdentifier(ownerCol.name), QuoteIdentifier(targetCol.name))
			out = append(out, Statement{Table: rel.JoinTable, SQL: sql})
		}
	}
	return out, nil
}

type joinColumn struct {
	name string
	def  string
}

func (g *Generator) joinColumn(rs *schema.ResourceSchema, column, fallback string) (joinColumn, error) {
	if column == "" {
		column = fallback
	}
	pk, err := rs.GetPrimaryKey()
	if err != nil {
		return joinColumn{}, fmt.Errorf("%s: %w", rs.Name, err)
	}
	typ, err := g.columnType(pk.Type)
	if err != nil {
		return joinColumn{}, err
	}
	def := fmt.Sprintf("%s %s NOT NULL REFERENCES %s (%s) ON DELETE CASCADE",
		QuoteIdentifier(column), typ, QuoteIdentifier(rs.TableName), QuoteIdentifier(pk.ColumnName()))
	return joinColumn{name: column, def: def}, nil
}

func (g *Generator) columnType(t *schema.TypeSpec) (string, error) {
	if t == nil {
		return "", fmt.Errorf("type spec cannot be nil")
	}
	if g.dialect == SQLite {
		switch t.BaseType {
		case schema.TypeString, schema.TypeText, schema.TypeEnum, schema.TypeUUID, schema.TypeJSON:
			return "TEXT", nil
		case schema.TypeInt, schema.TypeBigInt:
			return "INTEGER", nil
		case schema.TypeFloat:
			return "REAL", nil
		case schema.TypeDecimal:
			return "NUMERIC", nil
		case schema.TypeBool:
			return "BOOLEAN", nil
		case schema.TypeTimestamp:
			return "DATETIME", nil
		case schema.TypeDate:
			return "DATE", nil
		case schema.TypeTime:
			return "TIME", nil
		}
		return "", fmt.Errorf("unsupported type: %s", t.BaseType)
	}

	switch t.BaseType {
	case schema.TypeString, schema.TypeEnum:
		return "VARCHAR(255)", nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeInt:
		return "INTEGER", nil
	case schema.TypeBigInt:
		return "BIGINT", nil
	case schema.TypeFloat:
		return "DOUBLE PRECISION", nil
	case schema.TypeDecimal:
		return "NUMERIC", nil
	case schema.TypeBool:
		return "BOOLEAN", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP WITH TIME ZONE", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeUUID:
		return "UUID", nil
	case schema.TypeJSON:
		return "JSONB", nil
	}
	return "", fmt.Errorf("unsupported type: %s", t.BaseType)
}

// QuoteIdentifier quotes a table, column or index name
func QuoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// QuoteLiteral quotes a string literal
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
