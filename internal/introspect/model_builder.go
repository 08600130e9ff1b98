package introspect

import "sort"

// buildSchemas groups a dialect's raw component rows by (schema, table)
// into normalized Schema/Table aggregates (spec §4.7
// "IntrospectionModelBuilder contract": "groups them by (schema, table[,
// constraint/index name]), sorts each group by position"). schemas lists
// every schema that must appear in the result even if it has no tables.
func buildSchemas(schemas []string, rows componentRows) []Schema {
	tablesBySchema := make(map[string]map[string]*Table)
	order := make(map[string][]string) // schema -> table names in first-seen order
	for _, s := range schemas {
		tablesBySchema[s] = make(map[string]*Table)
	}

	tableFor := func(schema, name string) *Table {
		byName, ok := tablesBySchema[schema]
		if !ok {
			byName = make(map[string]*Table)
			tablesBySchema[schema] = byName
		}
		t, ok := byName[name]
		if !ok {
			t = &Table{Name: name, Kind: KindTable}
			byName[name] = t
			order[schema] = append(order[schema], name)
		}
		return t
	}

	for _, r := range rows.relations {
		schema, name := str(r, "schema_name"), str(r, "table_name")
		t := tableFor(schema, name)
		if k := str(r, "kind"); k != "" {
			t.Kind = Kind(k)
		}
		t.Description = str(r, "description")
	}

	type posCol struct {
		col Column
		pos any
	}
	colsByTable := make(map[[2]string][]posCol)
	for _, r := range rows.columns {
		schema, name := str(r, "schema_name"), str(r, "table_name")
		tableFor(schema, name)
		key := [2]string{schema, name}
		colsByTable[key] = append(colsByTable[key], posCol{
			col: Column{
				Name:              str(r, "column_name"),
				DataType:          str(r, "data_type"),
				Nullable:          boolVal(r, "nullable"),
				Description:       str(r, "description"),
				DefaultExpression: str(r, "default_expression"),
				Generated:         str(r, "generated"),
			},
			pos: r["ordinal_position"],
		})
	}
	for key, cols := range colsByTable {
		sort.SliceStable(cols, func(i, j int) bool { return positionLess(cols[i].pos, cols[j].pos) })
		t := tableFor(key[0], key[1])
		for _, pc := range cols {
			t.Columns = append(t.Columns, pc.col)
		}
	}

	for _, r := range rows.primaryKeys {
		schema, name := str(r, "schema_name"), str(r, "table_name")
		t := tableFor(schema, name)
		if t.PrimaryKey == nil {
			t.PrimaryKey = &KeyConstraint{Name: str(r, "constraint_name")}
		}
		t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, str(r, "column_name"))
	}

	uniqueByName := make(map[[3]string]*KeyConstraint)
	for _, r := range rows.uniques {
		schema, name, cname := str(r, "schema_name"), str(r, "table_name"), str(r, "constraint_name")
		t := tableFor(schema, name)
		key := [3]string{schema, name, cname}
		kc, ok := uniqueByName[key]
		if !ok {
			kc = &KeyConstraint{Name: cname}
			uniqueByName[key] = kc
			t.UniqueConstraints = append(t.UniqueConstraints, *kc)
		}
		kc.Columns = append(kc.Columns, str(r, "column_name"))
		// keep t.UniqueConstraints' copy in sync
		for i := range t.UniqueConstraints {
			if t.UniqueConstraints[i].Name == cname {
				t.UniqueConstraints[i].Columns = kc.Columns
			}
		}
	}

	for _, r := range rows.checks {
		schema, name := str(r, "schema_name"), str(r, "table_name")
		t := tableFor(schema, name)
		t.CheckConstraints = append(t.CheckConstraints, CheckConstraint{
			Name:       str(r, "constraint_name"),
			Expression: str(r, "expression"),
		})
	}

	fkByName := make(map[[3]string]int) // index into t.ForeignKeys
	for _, r := range rows.foreignKeys {
		schema, name, fname := str(r, "schema_name"), str(r, "table_name"), str(r, "constraint_name")
		t := tableFor(schema, name)
		key := [3]string{schema, name, fname}
		idx, ok := fkByName[key]
		if !ok {
			t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
				Name:            fname,
				ReferencedTable: str(r, "referenced_table"),
			})
			idx = len(t.ForeignKeys) - 1
			fkByName[key] = idx
		}
		t.ForeignKeys[idx].Mapping = append(t.ForeignKeys[idx].Mapping, ForeignKeyColumnMap{
			FromColumn: str(r, "from_column"),
			ToColumn:   str(r, "to_column"),
		})
	}

	idxByName := make(map[[3]string]int)
	for _, r := range rows.indexes {
		schema, name, iname := str(r, "schema_name"), str(r, "table_name"), str(r, "index_name")
		t := tableFor(schema, name)
		key := [3]string{schema, name, iname}
		idx, ok := idxByName[key]
		if !ok {
			t.Indexes = append(t.Indexes, Index{
				Name:   iname,
				Unique: boolVal(r, "unique"),
				Method: str(r, "method"),
			})
			idx = len(t.Indexes) - 1
			idxByName[key] = idx
		}
		t.Indexes[idx].Columns = append(t.Indexes[idx].Columns, str(r, "column_name"))
	}

	for _, r := range rows.partitions {
		schema, name := str(r, "schema_name"), str(r, "table_name")
		t := tableFor(schema, name)
		if t.PartitionInfo == nil {
			t.PartitionInfo = &PartitionInfo{}
		}
		if child := str(r, "partition_table"); child != "" {
			t.PartitionInfo.PartitionTables = append(t.PartitionInfo.PartitionTables, child)
		}
	}

	for _, r := range rows.tableStats {
		schema, name := str(r, "schema_name"), str(r, "table_name")
		t := tableFor(schema, name)
		t.Stats = &TableStats{
			RowCountEstimate: intVal(r, "row_count_estimate"),
			Method:           str(r, "method"),
		}
	}

	out := make([]Schema, 0, len(schemas))
	for _, s := range schemas {
		tableNames := order[s]
		sort.Strings(tableNames) // stable, deterministic output regardless of row arrival order
		tables := make([]Table, 0, len(tableNames))
		for _, name := range tableNames {
			tables = append(tables, *tablesBySchema[s][name])
		}
		out = append(out, Schema{Name: s, Tables: tables})
	}
	return out
}

// positionLess implements the original's sort key "(pos is None, pos or
// 0)" so null positions sort last, stably (spec §4.7
// "IntrospectionModelBuilder contract").
func positionLess(a, b any) bool {
	an, aNil := toInt64(a)
	bn, bNil := toInt64(b)
	if aNil != bNil {
		return !aNil // non-nil sorts before nil
	}
	return an < bn
}

func toInt64(v any) (n int64, isNil bool) {
	if v == nil {
		return 0, true
	}
	switch t := v.(type) {
	case int64:
		return t, false
	case int:
		return int64(t), false
	case float64:
		return int64(t), false
	default:
		return 0, true
	}
}

func str(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func boolVal(row map[string]any, key string) bool {
	v, ok := row[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func intVal(row map[string]any, key string) int64 {
	n, isNil := toInt64(row[key])
	if isNil {
		return 0
	}
	return n
}
