package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/datakelola/skema/internal/config"
	"github.com/datakelola/skema/internal/ddl"
)

// sqlFlags carries the generation flags shared by generate and apply.
type sqlFlags struct {
	Schema            string
	Owner             string
	WithDrop          bool
	DefaultVarcharLen int
	Tablespace        string
	Extensions        string // comma-separated
}

func (f *sqlFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Schema, "schema", "", "target schema (default from config, then public)")
	cmd.Flags().StringVar(&f.Owner, "owner", "", "table owner for ALTER TABLE ... OWNER TO")
	cmd.Flags().BoolVar(&f.WithDrop, "with-drop", false, "emit DROP TABLE IF EXISTS ... CASCADE")
	cmd.Flags().IntVar(&f.DefaultVarcharLen, "default-varchar-length", 0, "length for varchar/char without one (default from config, then 255)")
	cmd.Flags().StringVar(&f.Tablespace, "tablespace", "", "tablespace for ALTER TABLE ... SET TABLESPACE")
	cmd.Flags().StringVar(&f.Extensions, "create-extensions", "", "comma-separated extensions to create (uuid-ossp, pgcrypto)")
}

// options merges flag values over configuration defaults.
func (f *sqlFlags) options(cmd *cobra.Command, cfg *config.Config) ddl.Options {
	out := ddl.Options{
		Schema:            f.Schema,
		Owner:             f.Owner,
		WithDrop:          f.WithDrop,
		DefaultVarcharLen: f.DefaultVarcharLen,
		Tablespace:        f.Tablespace,
	}
	for _, ext := range strings.Split(f.Extensions, ",") {
		if ext = strings.TrimSpace(ext); ext != "" {
			out.Extensions = append(out.Extensions, ext)
		}
	}

	if cfg != nil {
		if out.Schema == "" {
			out.Schema = cfg.SQL.Schema
		}
		if out.Owner == "" {
			out.Owner = cfg.SQL.Owner
		}
		if out.DefaultVarcharLen == 0 {
			out.DefaultVarcharLen = cfg.SQL.DefaultVarcharLength
		}
		if out.Tablespace == "" {
			out.Tablespace = cfg.SQL.Tablespace
		}
		if len(out.Extensions) == 0 {
			out.Extensions = cfg.SQL.Extensions
		}
		if !cmd.Flags().Changed("with-drop") {
			out.WithDrop = cfg.SQL.WithDrop
		}
	}
	return out
}
