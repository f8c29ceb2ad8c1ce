package etl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/stretchr/testify/require"
)

func storeWith(t *testing.T, path, body string) *memStore {
	t.Helper()
	s := newMemStore()
	require.NoError(t, s.Put(context.Background(), path, "application/json", []byte(body)))
	s.puts = 0
	return s
}

func transformCSV(t *testing.T, entity models.Entity, body string) (string, *memStore, error) {
	t.Helper()
	store := storeWith(t, models.RawPath(entity.String()), body)
	out := filepath.Join(t.TempDir(), entity.String()+".csv")
	_, err := NewTransformer(store).TransformToCSV(context.Background(), entity, models.RawPath(entity.String()), out)
	if err != nil {
		return "", store, err
	}
	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	return string(data), store, nil
}

func TestTransformProducts_FiltersAtThreshold(t *testing.T) {
	body := `{"products":[
		{"id":1,"title":"a","category":"c","brand":"b","price":40},
		{"id":2,"title":"b","category":"c","brand":"b","price":50},
		{"id":3,"title":"c","category":"c","brand":"b","price":51},
		{"id":4,"title":"d","category":"c","brand":"b","price":"100"},
		{"id":5,"title":"e","category":"c","brand":"b","price":"n/a"}
	]}`

	got, store, err := transformCSV(t, models.Products, body)
	require.NoError(t, err)
	require.Equal(t, "product_id,name,category,brand,price\n3,c,c,b,51\n4,d,c,b,100\n", got)
	require.Equal(t, got, string(store.objects["transformed/products_transformed.csv"]))
	require.Equal(t, "text/csv", store.types["transformed/products_transformed.csv"])
}

func TestTransformCarts_TotalsPerCart(t *testing.T) {
	body := `{"carts":[
		{"id":7,"userId":3,"products":[
			{"id":10,"title":"pen","quantity":2,"price":10},
			{"id":11,"title":"ink","quantity":1,"price":5}
		]},
		{"id":8,"userId":4,"products":[{"id":12,"title":"pad","quantity":3,"price":1.5}]}
	]}`

	table, err := TransformDocument(models.Carts, mustDecode(t, body))
	require.NoError(t, err)
	require.Equal(t, []string{"cart_id", "user_id", "product_id", "name", "quantity", "price", "total_cart_value"}, table.Columns)
	require.Equal(t, 3, table.Len())
	require.Equal(t, []interface{}{25.0, 25.0, 4.5}, table.Column("total_cart_value"))

	csvData, err := EncodeCSV(table)
	require.NoError(t, err)
	require.Equal(t, "cart_id,user_id,product_id,name,quantity,price,total_cart_value\n"+
		"7,3,10,pen,2,10,25\n"+
		"7,3,11,ink,1,5,25\n"+
		"8,4,12,pad,3,1.5,4.5\n", string(csvData))
}

func TestTransformCarts_MissingProductsArray(t *testing.T) {
	_, err := TransformDocument(models.Carts, mustDecode(t, `[{"id":1,"userId":2}]`))
	require.ErrorIs(t, err, ErrSchema)
}

func TestTransformUsers_MissingAddressKeepsUser(t *testing.T) {
	body := `{"users":[
		{"id":1,"firstName":"Ann","lastName":"Lee","gender":"female","age":30,
		 "address":{"address":"1 Main St","city":"Oslo","postalCode":"0150"}},
		{"id":2,"firstName":"Bo","lastName":"Kim","gender":"male","age":41}
	]}`

	got, _, err := transformCSV(t, models.Users, body)
	require.NoError(t, err)
	require.Equal(t, "user_id,first_name,last_name,gender,age,street,city,postal_code\n"+
		"1,Ann,Lee,female,30,1 Main St,Oslo,0150\n"+
		"2,Bo,Kim,male,41,,,\n", got)
}

func TestTransformUsers_StreetFallback(t *testing.T) {
	body := `[{"id":1,"firstName":"A","lastName":"B","gender":"x","age":1,"address":{"street":"Elm","city":"C","postalCode":"1"}}]`
	table, err := TransformDocument(models.Users, mustDecode(t, body))
	require.NoError(t, err)
	require.Equal(t, []interface{}{"Elm"}, table.Column("street"))
}

func TestTransformUsers_NoAddressAnywhereIsSchemaError(t *testing.T) {
	body := `{"users":[{"id":1,"firstName":"Ann","lastName":"Lee","gender":"f","age":3}]}`
	out := filepath.Join(t.TempDir(), "users.csv")
	store := storeWith(t, "raw/users_raw.json", body)

	_, err := NewTransformer(store).TransformToCSV(context.Background(), models.Users, "raw/users_raw.json", out)
	require.ErrorIs(t, err, ErrSchema)
	require.Contains(t, err.Error(), "address.city")
	require.NoFileExists(t, out)
	require.Zero(t, store.puts)
	require.False(t, Retryable(err))
}

func TestTransform_Idempotent(t *testing.T) {
	body := `{"products":[{"id":1,"title":"x","category":"c","brand":"b","price":99.999999},{"id":2,"title":"y, z","category":"c","brand":"b","price":1e3}]}`
	first, _, err := transformCSV(t, models.Products, body)
	require.NoError(t, err)
	second, _, err := transformCSV(t, models.Products, body)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Contains(t, first, `"y, z"`)
}

func TestTransform_InputErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewTransformer(newMemStore()).Transform(ctx, models.Products, "raw/missing.json")
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, ErrNotFound)

	store := storeWith(t, "raw/products_raw.json", `{"products": [`)
	_, err = NewTransformer(store).Transform(ctx, models.Products, "raw/products_raw.json")
	require.ErrorIs(t, err, ErrDecode)

	for name, body := range map[string]string{
		"wrong wrapper key": `{"items":[]}`,
		"scalar body":       `42`,
		"non-object record": `{"products":[1,2]}`,
		"missing column":    `{"products":[{"id":1,"title":"x","category":"c","brand":"b"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := TransformDocument(models.Products, mustDecode(t, body))
			require.ErrorIs(t, err, ErrSchema)
		})
	}

	_, err = TransformDocument(models.Entity("orders"), []interface{}{})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestFlatten_DottedKeys(t *testing.T) {
	rec := mustDecode(t, `{"a":{"b":{"c":1}},"tags":["x"],"d":null}`).(map[string]interface{})
	flat := flatten(rec)
	require.Contains(t, flat, "a.b.c")
	require.Contains(t, flat, "d")
	require.Equal(t, []interface{}{"x"}, flat["tags"])
}

func mustDecode(t *testing.T, body string) interface{} {
	t.Helper()
	v, err := decodeJSON(strings.NewReader(body))
	require.NoError(t, err)
	return v
}
