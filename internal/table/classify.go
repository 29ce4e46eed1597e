package table

// Classification partitions column names by kind. The three lists are
// disjoint, cover every column and keep table order.
type Classification struct {
	Numeric     []string
	Categorical []string
	Temporal    []string
}

func Classify(t Table) Classification {
	out := Classification{
		Numeric:     []string{},
		Categorical: []string{},
		Temporal:    []string{},
	}
	for _, column := range t.Columns {
		switch column.Kind {
		case KindNumeric:
			out.Numeric = append(out.Numeric, column.Name)
		case KindTemporal:
			out.Temporal = append(out.Temporal, column.Name)
		default:
			out.Categorical = append(out.Categorical, column.Name)
		}
	}
	return out
}
