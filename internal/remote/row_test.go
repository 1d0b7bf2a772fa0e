// ABOUTME: Tests for decoding remote rows
// ABOUTME: Covers numeric, time, string and attribute coercion
package remote

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRow_Int(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int
		wantErr bool
	}{
		{"int64", int64(4), 4, false},
		{"float64 from json", float64(7), 7, false},
		{"json number", json.Number("9"), 9, false},
		{"string", "12", 12, false},
		{"bytes", []byte("3"), 3, false},
		{"null", nil, 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Row{"count": tt.value}.Int("count")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRow_Time(t *testing.T) {
	want := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)
	spellings := []any{
		want,
		want.In(time.FixedZone("IST", 5*3600+1800)),
		"2024-01-02T10:30:00.000000000Z",
		"2024-01-02T10:30:00Z",
		"2024-01-02T16:00:00+05:30",
		"2024-01-02 10:30:00",
		[]byte("2024-01-02 10:30:00+00:00"),
	}
	for _, v := range spellings {
		got, err := Row{"created_at": v}.Time("created_at")
		require.NoError(t, err, "value %v", v)
		require.True(t, want.Equal(got), "value %v parsed as %v", v, got)
	}

	_, err := Row{"created_at": "yesterday"}.Time("created_at")
	require.Error(t, err)

	require.Equal(t, "2024-01-02T10:30:00.000000000Z", want.Format(TimeLayout))
}

func TestRow_Attributes(t *testing.T) {
	fromText, err := Row{"attributes": `{"deity":"Shiva","age":30}`}.Attributes("attributes")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"deity": "Shiva", "age": "30"}, fromText)

	fromMap, err := Row{"attributes": map[string]any{"practice": "puja", "skip": nil}}.Attributes("attributes")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"practice": "puja"}, fromMap)

	empty, err := Row{}.Attributes("attributes")
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = Row{"attributes": "[1,2]"}.Attributes("attributes")
	require.Error(t, err)
}

func TestRow_String(t *testing.T) {
	r := Row{"a": "x", "b": []byte("y"), "c": int64(5)}
	require.Equal(t, "x", r.String("a"))
	require.Equal(t, "y", r.String("b"))
	require.Equal(t, "5", r.String("c"))
	require.Equal(t, "", r.String("missing"))
}

func TestQueryCheck(t *testing.T) {
	tbl, err := Lookup(TableHistory)
	require.NoError(t, err)

	require.NoError(t, Query{Filter: Filter{"user_id": "u1"}, OrderBy: "created_at", Limit: 50}.Check(tbl))
	require.True(t, IsIrrecoverable(Query{OrderBy: "created_at; DROP TABLE x"}.Check(tbl)))
	require.True(t, IsIrrecoverable(Query{Filter: Filter{"nope": 1}}.Check(tbl)))
	require.True(t, IsIrrecoverable(Query{Limit: -1}.Check(tbl)))

	_, err = Lookup("users")
	require.True(t, IsIrrecoverable(err))
}
