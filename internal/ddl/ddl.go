// Package ddl renders PostgreSQL DDL from parsed entity schemas.
//
// Output is deterministic: entities render in the order they were loaded
// (sorted file paths), and every statement is assembled from sorted or
// declaration-ordered parts. The same corpus always produces the same script.
package ddl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/datakelola/skema/internal/schema"
)

// Options configures generation. Zero values fall back to the documented
// defaults (schema public, varchar length 255).
type Options struct {
	Schema            string   // target schema when the entity has no override
	Owner             string   // ALTER TABLE ... OWNER TO
	WithDrop          bool     // emit DROP TABLE IF EXISTS ... CASCADE
	DefaultVarcharLen int      // length for varchar/char columns without one
	Tablespace        string   // ALTER TABLE ... SET TABLESPACE
	Extensions        []string // CREATE EXTENSION IF NOT EXISTS prologue
}

func (o Options) withDefaults() Options {
	if o.Schema == "" {
		o.Schema = "public"
	}
	if o.DefaultVarcharLen <= 0 {
		o.DefaultVarcharLen = 255
	}
	return o
}

var plainIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdent quotes an identifier only when it is not a plain identifier.
func QuoteIdent(name string) string {
	if name == "" || plainIdentRe.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify renders a possibly dotted reference with each component quoted
// as needed.
func qualify(ref string) string {
	parts := strings.Split(ref, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// QuoteLiteral renders a YAML scalar as a SQL literal.
func QuoteLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case int, int64, uint64, float64:
		return fmt.Sprintf("%v", t)
	default:
		s := strings.ReplaceAll(fmt.Sprintf("%v", t), "'", "''")
		return "'" + s + "'"
	}
}

// uuidDefault picks the UUID generation function for the configured
// extension set: uuid-ossp brings uuid_generate_v4, pgcrypto (and modern
// Postgres cores) provide gen_random_uuid.
func uuidDefault(extensions []string) string {
	for _, ext := range extensions {
		if strings.EqualFold(strings.TrimSpace(ext), "uuid-ossp") {
			return "uuid_generate_v4()"
		}
	}
	return "gen_random_uuid()"
}

// Extensions renders the CREATE EXTENSION prologue, one statement per
// configured extension.
func Extensions(opts Options) []string {
	var stmts []string
	for _, ext := range opts.Extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s;", QuoteIdent(ext)))
	}
	return stmts
}

// Statements renders all DDL statements for one entity: optional drop,
// create table with primary and foreign keys, tablespace/owner alters, raw
// constraints, indexes, and comments.
func Statements(e *schema.Entity, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	if len(e.Fields) == 0 {
		return nil, fmt.Errorf("entity %s: fields list is required and must be non-empty", e.TechnicalName)
	}

	table := qualify(e.QualifiedName(opts.Schema))
	uuidFunc := uuidDefault(opts.Extensions)

	var (
		colDefs     []string
		primaryCols []string
		fkDefs      []string
		colComments = make(map[string]string)
		commentCols []string
	)

	for i := range e.Fields {
		f := &e.Fields[i]
		def, err := columnDef(f, opts.DefaultVarcharLen, uuidFunc)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.TechnicalName, err)
		}
		colDefs = append(colDefs, def)

		if f.PK {
			primaryCols = append(primaryCols, f.TechnicalName)
		}
		if f.FK != nil {
			fkDef, err := foreignKeyDef(f)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", e.TechnicalName, err)
			}
			fkDefs = append(fkDefs, fkDef)
		}
		if f.Comment != "" {
			colComments[f.TechnicalName] = f.Comment
			commentCols = append(commentCols, f.TechnicalName)
		}
	}

	if len(primaryCols) > 1 {
		return nil, fmt.Errorf("entity %s: more than one pk column: %v", e.TechnicalName, primaryCols)
	}

	var stmts []string

	if opts.WithDrop {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table))
	}

	body := make([]string, 0, len(colDefs)+1+len(fkDefs))
	body = append(body, colDefs...)
	if len(primaryCols) == 1 {
		body = append(body, fmt.Sprintf("PRIMARY KEY (%s)", QuoteIdent(primaryCols[0])))
	}
	body = append(body, fkDefs...)
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n    %s\n);", table, strings.Join(body, ",\n    ")))

	if opts.Tablespace != "" {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s SET TABLESPACE %s;", table, QuoteIdent(opts.Tablespace)))
	}
	if opts.Owner != "" {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s OWNER TO %s;", table, QuoteIdent(opts.Owner)))
	}

	for _, c := range e.Constraints {
		if c.Name == "" || c.Expression == "" {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s;", table, QuoteIdent(c.Name), c.Expression))
	}

	for _, idx := range e.Indexes {
		if idx.Name == "" || len(idx.Columns) == 0 {
			continue
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		method := ""
		if idx.Method != "" {
			method = fmt.Sprintf("USING %s ", strings.ToUpper(idx.Method))
		}
		cols := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			cols[i] = QuoteIdent(c)
		}
		where := ""
		if idx.Where != "" {
			where = " WHERE " + idx.Where
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s %s(%s)%s;",
			unique, QuoteIdent(idx.Name), table, method, strings.Join(cols, ", "), where))
	}

	if e.Comment != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s IS %s;", table, QuoteLiteral(e.Comment)))
	}
	for _, col := range commentCols {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s;", table, QuoteIdent(col), QuoteLiteral(colComments[col])))
	}

	return stmts, nil
}

// columnDef renders one column clause of CREATE TABLE.
func columnDef(f *schema.Field, defaultVarcharLen int, uuidFunc string) (string, error) {
	name := f.TechnicalName
	if name == "" {
		return "", fmt.Errorf("field without technical_name")
	}
	typ := f.Type
	if typ == "" {
		return "", fmt.Errorf("field %s: type is required", name)
	}
	if typ == "serial" {
		return "", fmt.Errorf("field %s: type serial is forbidden", name)
	}
	if !schema.AllowedTypes[typ] {
		return "", fmt.Errorf("field %s: unknown type %q", name, typ)
	}

	typeSQL := typ
	if typ == "varchar" || typ == "char" {
		n := f.Length
		if n <= 0 {
			n = defaultVarcharLen
		}
		typeSQL = fmt.Sprintf("%s(%d)", typ, n)
	}

	pieces := []string{QuoteIdent(name) + " " + typeSQL}

	switch {
	case f.Generated == "uuid_v4":
		pieces = append(pieces, "DEFAULT "+uuidFunc)
	case f.Default != nil:
		pieces = append(pieces, "DEFAULT "+QuoteLiteral(f.Default))
	}

	if f.NotNull {
		pieces = append(pieces, "NOT NULL")
	}
	if f.Unique {
		pieces = append(pieces, "UNIQUE")
	}

	return strings.Join(pieces, " "), nil
}

// foreignKeyDef renders one inline FOREIGN KEY clause.
func foreignKeyDef(f *schema.Field) (string, error) {
	fk := f.FK
	if fk.RefTable == "" {
		return "", fmt.Errorf("field %s: fk.ref_table is required", f.TechnicalName)
	}
	refField := fk.RefField
	if refField == "" {
		refField = "id"
	}

	clause := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
		QuoteIdent(f.TechnicalName), qualify(fk.RefTable), QuoteIdent(refField))
	if fk.OnDelete != "" {
		clause += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		clause += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	if fk.Deferrable != "" {
		clause += " " + strings.ToUpper(fk.Deferrable)
	}
	return clause, nil
}
