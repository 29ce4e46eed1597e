package table

import (
	"testing"
	"time"
)

func textColumn(name string, cells ...string) Column {
	values := make([]Value, len(cells))
	for i, cell := range cells {
		values[i] = parseCell(cell)
	}
	return Column{Name: name, Kind: KindText, Values: values}
}

func kinds(t Table) map[string]Kind {
	out := make(map[string]Kind, len(t.Columns))
	for _, column := range t.Columns {
		out[column.Name] = column.Kind
	}
	return out
}

func TestCoerceInfersKinds(t *testing.T) {
	tbl := Table{Columns: []Column{
		textColumn("order_date", "2023-01-05", "2023-02-10", "03/15/2023", "2023-04-01"),
		textColumn("region", "north", "south", "east", "west"),
		textColumn("revenue", "1,200.50", "300", "4 500", "12"),
		textColumn("year", "2021", "2022", "2023", "2024"),
		textColumn("id", "20230101", "20230102", "20230103", "20230104"),
	}}
	got := Coerce(tbl, CoerceOptions{})
	want := map[string]Kind{
		"order_date": KindTemporal,
		"region":     KindText,
		"revenue":    KindNumeric,
		"year":       KindTemporal,
		"id":         KindNumeric,
	}
	for name, kind := range want {
		if kinds(got)[name] != kind {
			t.Fatalf("column %s kind = %s, want %s", name, kinds(got)[name], kind)
		}
	}

	revenue, _ := got.Column("revenue")
	if revenue.Values[0].Number != 1200.5 || revenue.Values[2].Number != 4500 {
		t.Fatalf("thousands separators not stripped: %#v", revenue.Values)
	}
	dates, _ := got.Column("order_date")
	if !dates.Values[2].Time.Equal(time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("order_date[2] = %v", dates.Values[2].Time)
	}
	if tbl.Columns[0].Kind != KindText || tbl.Columns[0].Values[0].Kind != ValueText {
		t.Fatalf("Coerce() mutated its input")
	}
}

func TestCoerceThresholdIsStrict(t *testing.T) {
	// 7 of 10 parse: exactly 0.7 does not convert.
	column := textColumn("amount", "1", "2", "3", "4", "5", "6", "7", "x", "y", "z")
	got := Coerce(Table{Columns: []Column{column}}, CoerceOptions{Threshold: 0.7})
	if got.Columns[0].Kind != KindText {
		t.Fatalf("kind = %s, want text at exactly the threshold", got.Columns[0].Kind)
	}

	column = textColumn("amount", "1", "2", "3", "4", "5", "6", "7", "8", "y", "z")
	got = Coerce(Table{Columns: []Column{column}}, CoerceOptions{Threshold: 0.7})
	if got.Columns[0].Kind != KindNumeric {
		t.Fatalf("kind = %s, want numeric above the threshold", got.Columns[0].Kind)
	}
	if !got.Columns[0].Values[8].IsNull() {
		t.Fatalf("unparseable cell should become null")
	}
}

func TestCoerceNullsCountAsFailures(t *testing.T) {
	column := textColumn("price", "1", "2", "", "", "")
	got := Coerce(Table{Columns: []Column{column}}, CoerceOptions{})
	if got.Columns[0].Kind != KindText {
		t.Fatalf("kind = %s, want text", got.Columns[0].Kind)
	}
}

func TestCoerceEmptyColumnNeverConverts(t *testing.T) {
	got := Coerce(Table{Columns: []Column{{Name: "date", Kind: KindText}}}, CoerceOptions{})
	if got.Columns[0].Kind != KindText {
		t.Fatalf("kind = %s, want text", got.Columns[0].Kind)
	}
}

func TestCoerceYearTextBecomesTemporal(t *testing.T) {
	got := Coerce(Table{Columns: []Column{
		textColumn("period", "2021", "2022", "2023"),
		textColumn("settled", "20210315", "20210401", "20210502"),
	}}, CoerceOptions{})
	for _, column := range got.Columns {
		if column.Kind != KindTemporal {
			t.Fatalf("column %s kind = %s, want temporal", column.Name, column.Kind)
		}
	}
	want := time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !got.Columns[0].Values[1].Time.Equal(want) {
		t.Fatalf("period[1] = %v, want %v", got.Columns[0].Values[1].Time, want)
	}
}

func TestCoerceYearNumbersNeedHint(t *testing.T) {
	tbl := Table{Columns: []Column{
		{Name: "code", Kind: KindNumeric, Values: []Value{Number(2021), Number(2022), Number(2023)}},
		textColumn("amount", "2,021", "2022.5", "1999.0"),
	}}
	got := Coerce(tbl, CoerceOptions{})
	for _, column := range got.Columns {
		if column.Kind != KindNumeric {
			t.Fatalf("column %s kind = %s, want numeric without a temporal hint", column.Name, column.Kind)
		}
	}
}

func TestCoerceIsIdempotent(t *testing.T) {
	tables := []Table{
		{Columns: []Column{
			textColumn("order_date", "2023-01-05", "2023-02-10", "bad", "2023-04-01"),
			textColumn("day", "1", "2", "3", "31"),
			textColumn("fiscal_year", "2,021", "2022", "2023.0", "oops"),
			textColumn("name", "a", "b", "c", "d"),
			textColumn("score", "1", "2", "n/a", "4"),
		}},
		{Columns: []Column{
			{Name: "year", Kind: KindNumeric, Values: []Value{Number(2020), Number(2021), Number(5), Null()}},
		}},
	}
	for _, tbl := range tables {
		once := Coerce(tbl, CoerceOptions{})
		twice := Coerce(once, CoerceOptions{})
		first, second := kinds(once), kinds(twice)
		for name, kind := range first {
			if second[name] != kind {
				t.Fatalf("column %s: first %s, second %s", name, kind, second[name])
			}
		}
	}
}

func TestParseNumber(t *testing.T) {
	cases := map[string]struct {
		want float64
		ok   bool
	}{
		"1,234":    {1234, true},
		" 12 345 ": {12345, true},
		"-3.5":     {-3.5, true},
		"NaN":      {0, false},
		"abc":      {0, false},
		"":         {0, false},
	}
	for in, tc := range cases {
		got, ok := ParseNumber(in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseNumber(%q) = %v, %v; want %v, %v", in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseTimeLayouts(t *testing.T) {
	for _, in := range []string{"2023-07-04", "2023-07-04 10:11:12", "2023-07-04T10:11:12Z", "7/4/2023", "Jul 4, 2023", "4 Jul 2023", "2023-07", "Jul 2023"} {
		ts, ok := ParseTime(in)
		if !ok {
			t.Fatalf("ParseTime(%q) failed", in)
		}
		if ts.Year() != 2023 || ts.Month() != time.July {
			t.Fatalf("ParseTime(%q) = %v", in, ts)
		}
	}
	if _, ok := ParseTime("12.5"); ok {
		t.Fatalf("ParseTime(12.5) should fail")
	}
}
