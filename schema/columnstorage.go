package schema

import "github.com/pbixdm/pbixdm/sqlitedb"

// ColumnDescriptor is one physical user column, bound to the storage
// file names the VertiPaq decoders need, per §3/§4.6.
type ColumnDescriptor struct {
	TableName  string
	Name       string
	IDF        string // required
	IDFMeta    string // implicit idf + "meta"
	Dictionary string // absent ("") for pure-integer affine-mapped columns
	HIDX       string // diagnostic only
	DataType   int
	BaseID     int64
	Magnitude  float64
	IsNullable bool
	Cardinality int64
}

// BuildColumnDescriptors resolves, for every emitted column of model,
// the chain Column -> ColumnStorage -> ColumnPartitionStorage ->
// StorageFile (IDF filename), Column -> ColumnStorage ->
// DictionaryStorage -> StorageFile (dictionary filename), and Column ->
// AttributeHierarchy -> AttributeHierarchyStorage -> StorageFile (HIDX
// filename). Only type 1/2 columns of tables surviving the internal
// filter are emitted (model.Tables already reflects that filter). A
// column without a resolvable IDF file is omitted.
func BuildColumnDescriptors(db *sqlitedb.DB, model *SemanticModel) ([]ColumnDescriptor, error) {
	colStorageRows, err := db.GetTableRows("ColumnStorage")
	if err != nil {
		return nil, err
	}
	// ColumnStorage keyed by its own rowid (Column[18] references it).
	type columnStorage struct {
		dictionaryStorageID int64
		distinctStates       int64
	}
	colStorage := map[int64]columnStorage{}
	for _, row := range colStorageRows {
		colStorage[row.RowID] = columnStorage{
			dictionaryStorageID: intAt(row.Values, 4),
			distinctStates:      intAt(row.Values, 11),
		}
	}

	partitionRows, err := db.GetTableRows("ColumnPartitionStorage")
	if err != nil {
		return nil, err
	}
	// keyed by the referenced ColumnStorageID, [1].
	partitionByColStorage := map[int64]int64{} // -> StorageFileID
	for _, row := range partitionRows {
		colStorageID := intAt(row.Values, 1)
		partitionByColStorage[colStorageID] = intAt(row.Values, 6)
	}

	storageFileRows, err := db.GetTableRows("StorageFile")
	if err != nil {
		return nil, err
	}
	fileNameByID := map[int64]string{}
	for _, row := range storageFileRows {
		fileNameByID[row.RowID] = str(row.Values, 4)
	}

	dictStorageRows, err := db.GetTableRows("DictionaryStorage")
	if err != nil {
		return nil, err
	}
	type dictStorage struct {
		baseID        int64
		magnitude     float64
		isNullable    bool
		storageFileID int64
	}
	dictStorages := map[int64]dictStorage{}
	for _, row := range dictStorageRows {
		dictStorages[row.RowID] = dictStorage{
			baseID:        intAt(row.Values, 5),
			magnitude:     floatAt(row.Values, 6),
			isNullable:    boolAt(row.Values, 8),
			storageFileID: intAt(row.Values, 12),
		}
	}

	hierRows, err := db.GetTableRows("AttributeHierarchy")
	if err != nil {
		return nil, err
	}
	hierStorageIDByColumn := map[int64]int64{}
	for _, row := range hierRows {
		columnID := intAt(row.Values, 1)
		hierStorageIDByColumn[columnID] = intAt(row.Values, 3)
	}
	hierStorageRows, err := db.GetTableRows("AttributeHierarchyStorage")
	if err != nil {
		return nil, err
	}
	hierStorageFileID := map[int64]int64{}
	for _, row := range hierStorageRows {
		hierStorageFileID[row.RowID] = intAt(row.Values, 9)
	}

	var out []ColumnDescriptor
	for _, t := range model.Tables {
		for _, c := range t.Columns {
			if c.Type != columnTypeData && c.Type != columnTypeCalculated {
				continue
			}
			cs, ok := colStorage[c.ColumnStorageID]
			if !ok {
				continue
			}
			storageFileID, ok := partitionByColStorage[c.ColumnStorageID]
			if !ok {
				continue
			}
			idfName, ok := fileNameByID[storageFileID]
			if !ok || idfName == "" {
				continue
			}

			desc := ColumnDescriptor{
				TableName:   t.Name,
				Name:        c.Name,
				IDF:         idfName,
				IDFMeta:     idfName + "meta",
				DataType:    c.DataType,
				Cardinality: cs.distinctStates,
			}

			if ds, ok := dictStorages[cs.dictionaryStorageID]; ok {
				desc.BaseID = ds.baseID
				desc.Magnitude = ds.magnitude
				desc.IsNullable = ds.isNullable
				if fn, ok := fileNameByID[ds.storageFileID]; ok {
					desc.Dictionary = fn
				}
			}
			if hsID, ok := hierStorageIDByColumn[c.ID]; ok {
				if sfID, ok := hierStorageFileID[hsID]; ok {
					if fn, ok := fileNameByID[sfID]; ok {
						desc.HIDX = fn
					}
				}
			}

			out = append(out, desc)
		}
	}
	return out, nil
}

func floatAt(values []interface{}, idx int) float64 {
	if idx >= len(values) || values[idx] == nil {
		return 0
	}
	switch v := values[idx].(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
