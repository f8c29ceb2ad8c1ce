package etl

import (
	"testing"

	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestEncodeCSV_QuotesAndNulls(t *testing.T) {
	table := &models.Table{
		Columns: []string{"id", "name", "price"},
		Rows: [][]interface{}{
			{int64(1), `He said "hi", twice`, 0.1},
			{int64(2), nil, 1e21},
		},
	}
	data, err := EncodeCSV(table)
	require.NoError(t, err)
	require.Equal(t, "id,name,price\n1,\"He said \"\"hi\"\", twice\",0.1\n2,,1000000000000000000000\n", string(data))

	table.Rows = append(table.Rows, []interface{}{int64(3)})
	_, err = EncodeCSV(table)
	require.Error(t, err)
}

func TestDetectSchema_WidensPerColumn(t *testing.T) {
	path := writeCSV(t, "a,b,c,d\n1,1,x,\n2,2.5,3,\n")
	schema, err := DetectSchema(path)
	require.NoError(t, err)
	require.Equal(t, models.Schema{
		{Name: "a", Type: models.TypeInteger, Mode: models.ModeNullable},
		{Name: "b", Type: models.TypeFloat, Mode: models.ModeNullable},
		{Name: "c", Type: models.TypeString, Mode: models.ModeNullable},
		{Name: "d", Type: models.TypeString, Mode: models.ModeNullable},
	}, schema)
}

func TestHeaderSchema(t *testing.T) {
	schema, err := HeaderSchema(writeCSV(t, "x,y\n1,2\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, schema.Names())
	for _, f := range schema {
		require.Equal(t, models.TypeString, f.Type)
	}

	_, err = HeaderSchema(writeCSV(t, ""))
	require.Error(t, err)
}

func TestConvertRow(t *testing.T) {
	row, err := convertRow([]string{"3.0", "2.5", "", "txt"},
		[]string{models.TypeInteger, models.TypeFloat, models.TypeInteger, models.TypeString})
	require.NoError(t, err)
	require.Equal(t, []interface{}{int64(3), 2.5, nil, "txt"}, row)

	_, err = convertRow([]string{"3.5"}, []string{models.TypeInteger})
	require.Error(t, err)
	_, err = convertRow([]string{"1", "2"}, []string{models.TypeInteger})
	require.Error(t, err)
}
