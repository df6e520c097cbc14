package models

// ColumnSpec names an entity-bearing column the profiler should read.
// EntityType may be empty, in which case it is inferred from the table name.
type ColumnSpec struct {
	Schema     string `json:"schema,omitempty" yaml:"schema"`
	Table      string `json:"table" yaml:"table"`
	Column     string `json:"column" yaml:"column"`
	EntityType string `json:"entity_type,omitempty" yaml:"entity_type"`
}

// QualifiedName returns schema.table.column, or table.column without a schema.
func (c ColumnSpec) QualifiedName() string {
	if c.Schema == "" {
		return c.Table + "." + c.Column
	}
	return c.Schema + "." + c.Table + "." + c.Column
}

// ValueFrequency is one row of a column's value distribution.
type ValueFrequency struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ColumnProfile is the distinct-values-with-counts for one column,
// sorted by count descending.
type ColumnProfile struct {
	Spec   ColumnSpec       `json:"spec"`
	Values []ValueFrequency `json:"values"`
}
