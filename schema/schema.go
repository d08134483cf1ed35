// Package schema joins rows out of the metadata.sqlitedb tables into the
// normalized semantic model (Semantic Schema Builder, §4.5) and the
// per-column storage-file bindings the VertiPaq decoders need (Column
// Schema Builder, §4.6). Both builders read by fixed column position -
// the metadata schema is a contract with Power BI Desktop, not a general
// SQL query, so each lookup below reads a fixed position through the
// typed accessors str, intAt, boolAt and floatAt.
package schema

import (
	"sort"
	"strings"

	"github.com/pbixdm/pbixdm/pbixerr"
	"github.com/pbixdm/pbixdm/sqlitedb"
)

// internal table-name prefixes filtered out of the emitted model (P4).
var internalPrefixes = []string{"LocalDateTable_", "DateTableTemplate_", "H$", "R$", "U$"}

func isInternalTable(name string) bool {
	for _, p := range internalPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Column types, from Column[19].
const (
	columnTypeData       = 1
	columnTypeCalculated = 2
	columnTypeRowNumber  = 3
)

// AMO data type codes, §3 / GLOSSARY.
const (
	DataTypeString    = 2
	DataTypeInt64     = 6
	DataTypeDouble    = 8
	DataTypeDateTime  = 9
	DataTypeDecimal   = 10
	DataTypeBoolean   = 11
	DataTypeBinary    = 17
)

// Column is one user-visible column of the semantic model (not yet bound
// to storage files; see ColumnDescriptor for that).
type Column struct {
	ID              int64
	TableID         int64
	Name            string
	DataType        int
	Description     string
	IsHidden        bool
	Type            int64
	Expression      string
	ColumnStorageID int64
}

type Measure struct {
	TableID      int64
	Name         string
	Description  string
	Expression   string
	FormatString string
	IsHidden     bool
}

type Relationship struct {
	FromTable   string
	FromColumn  string
	ToTable     string
	ToColumn    string
	IsActive    bool
	CrossFilter string // "single" or "both"
	Cardinality string // "manyToOne", "oneToMany", "oneToOne", "manyToMany"
}

type TablePermission struct {
	Table            string
	FilterExpression string
}

type Role struct {
	Name            string
	TablePermissions []TablePermission
}

// HierarchyLevel is one level of a user hierarchy, ordered outermost
// first.
type HierarchyLevel struct {
	Name   string
	Column string
}

type Hierarchy struct {
	Name   string
	Levels []HierarchyLevel
}

type PartitionSource struct {
	Type       string
	Expression string
}

type Partition struct {
	Name   string
	Source PartitionSource
}

type CalculationItem struct {
	Name                   string
	Expression             string
	FormatStringExpression string
}

// Table.Type, Hierarchies, Partitions, and CalculationItems are part of
// the surface shape but the metadata schema rows that would populate
// them (a table-level type code, and the Hierarchy/Partition/
// CalculationItem tables themselves) are not among the fixed column
// indices this builder joins against, so they are always the zero
// value / an empty slice; see DESIGN.md.
type Table struct {
	ID               int64
	Name             string
	Description      string
	IsHidden         bool
	Type             string
	Columns          []Column
	Measures         []Measure
	Hierarchies      []Hierarchy
	Partitions       []Partition
	CalculationItems []CalculationItem
}

// SemanticModel is the normalized result of the Semantic Schema Builder.
// Name, CompatibilityLevel, and Culture are part of the surface shape
// but, like Table.Type above, have no documented row mapping in this
// builder and are left zero valued; SourceFormat is always "pbix",
// since that value is a constant of the format, not data read from the
// database.
type SemanticModel struct {
	Name               string
	CompatibilityLevel int64
	Culture            string
	SourceFormat       string
	Tables             []Table
	Relationships      []Relationship
	Roles              []Role
}

// BuildSemanticModel joins Table, Column, Measure, Relationship, Role,
// and TablePermission rows into the normalized shape described in §3,
// filtering internal tables, rowNumber columns, and relationships that
// reference a filtered table (P4).
func BuildSemanticModel(db *sqlitedb.DB) (*SemanticModel, error) {
	tableRows, err := db.GetTableRows("Table")
	if err != nil {
		return nil, err
	}
	if len(tableRows) == 0 {
		return nil, pbixerr.E(pbixerr.IncompleteMetadata, "schema: no Table rows")
	}

	tables := map[int64]*Table{}
	tableNameByID := map[int64]string{}
	for _, row := range tableRows {
		name := str(row.Values, 2)
		if isInternalTable(name) {
			continue
		}
		t := &Table{
			ID:          row.RowID,
			Name:        name,
			Description: str(row.Values, 4),
			IsHidden:    boolAt(row.Values, 5),
		}
		tables[t.ID] = t
		tableNameByID[t.ID] = t.Name
	}

	columnRows, err := db.GetTableRows("Column")
	if err != nil {
		return nil, err
	}
	columnNameByID := map[int64]string{}
	for _, row := range columnRows {
		columnNameByID[row.RowID] = str(row.Values, 2)
		tableID := intAt(row.Values, 1)
		t, ok := tables[tableID]
		if !ok {
			continue
		}
		typ := intAt(row.Values, 19)
		if typ == columnTypeRowNumber {
			continue
		}
		c := Column{
			ID:              row.RowID,
			TableID:         tableID,
			Name:            str(row.Values, 2),
			DataType:        int(intAt(row.Values, 4)),
			Description:     str(row.Values, 7),
			IsHidden:        boolAt(row.Values, 8),
			Type:            typ,
			Expression:      str(row.Values, 22),
			ColumnStorageID: intAt(row.Values, 18),
		}
		t.Columns = append(t.Columns, c)
	}

	measureRows, err := db.GetTableRows("Measure")
	if err != nil {
		return nil, err
	}
	for _, row := range measureRows {
		tableID := intAt(row.Values, 1)
		t, ok := tables[tableID]
		if !ok {
			continue
		}
		t.Measures = append(t.Measures, Measure{
			TableID:      tableID,
			Name:         str(row.Values, 2),
			Description:  str(row.Values, 3),
			Expression:   str(row.Values, 5),
			FormatString: str(row.Values, 6),
			IsHidden:     boolAt(row.Values, 7),
		})
	}

	var relationships []Relationship
	relRows, err := db.GetTableRows("Relationship")
	if err != nil {
		return nil, err
	}
	for _, row := range relRows {
		fromTableID := intAt(row.Values, 8)
		toTableID := intAt(row.Values, 11)
		fromTableName, ok := tableNameByID[fromTableID]
		if !ok {
			continue
		}
		toTableName, ok := tableNameByID[toTableID]
		if !ok {
			continue
		}
		fromColumnName, ok := columnNameByID[intAt(row.Values, 9)]
		if !ok {
			continue
		}
		toColumnName, ok := columnNameByID[intAt(row.Values, 12)]
		if !ok {
			continue
		}
		crossFilter := "single"
		if intAt(row.Values, 5) == 2 {
			crossFilter = "both"
		}
		relationships = append(relationships, Relationship{
			FromTable:   fromTableName,
			FromColumn:  fromColumnName,
			ToTable:     toTableName,
			ToColumn:    toColumnName,
			IsActive:    boolAt(row.Values, 3),
			CrossFilter: crossFilter,
			Cardinality: relationshipCardinality(intAt(row.Values, 10), intAt(row.Values, 13)),
		})
	}

	roleRows, err := db.GetTableRows("Role")
	if err != nil {
		return nil, err
	}
	permRows, err := db.GetTableRows("TablePermission")
	if err != nil {
		return nil, err
	}
	roles := map[int64]*Role{}
	var roleOrder []int64
	for _, row := range roleRows {
		r := &Role{Name: str(row.Values, 2)}
		roles[row.RowID] = r
		roleOrder = append(roleOrder, row.RowID)
	}
	for _, row := range permRows {
		roleID := intAt(row.Values, 1)
		r, ok := roles[roleID]
		if !ok {
			continue
		}
		tableID := intAt(row.Values, 2)
		tableName, ok := tableNameByID[tableID]
		if !ok {
			continue
		}
		r.TablePermissions = append(r.TablePermissions, TablePermission{
			Table:            tableName,
			FilterExpression: str(row.Values, 3),
		})
	}

	model := &SemanticModel{SourceFormat: "pbix", Relationships: relationships}
	var ids []int64
	for id := range tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return tables[ids[i]].Name < tables[ids[j]].Name })
	for _, id := range ids {
		model.Tables = append(model.Tables, *tables[id])
	}
	for _, id := range roleOrder {
		model.Roles = append(model.Roles, *roles[id])
	}
	return model, nil
}

// relationshipCardinality follows the GLOSSARY's mapping from the raw
// from/to cardinality codes (2 = many) to the textual label.
func relationshipCardinality(fromCardinality, toCardinality int64) string {
	fromMany := fromCardinality == 2
	toMany := toCardinality == 2
	switch {
	case fromMany && toMany:
		return "manyToMany"
	case fromMany:
		return "manyToOne"
	case toMany:
		return "oneToMany"
	default:
		return "oneToOne"
	}
}

func str(values []interface{}, idx int) string {
	if idx >= len(values) || values[idx] == nil {
		return ""
	}
	if b, ok := values[idx].([]byte); ok {
		return string(b)
	}
	return ""
}

func intAt(values []interface{}, idx int) int64 {
	if idx >= len(values) || values[idx] == nil {
		return 0
	}
	if v, ok := values[idx].(int64); ok {
		return v
	}
	return 0
}

func boolAt(values []interface{}, idx int) bool {
	return intAt(values, idx) != 0
}
