package etl

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/BartekS5/storefront-etl/pkg/utils"
)

// PriceThreshold is the exclusive lower bound for kept products.
const PriceThreshold = 50.0

var (
	userColumns = []Column{
		{Name: "user_id", Sources: []string{"id"}, Required: true},
		{Name: "first_name", Sources: []string{"firstName"}, Required: true},
		{Name: "last_name", Sources: []string{"lastName"}, Required: true},
		{Name: "gender", Sources: []string{"gender"}, Required: true},
		{Name: "age", Sources: []string{"age"}, Required: true},
		{Name: "street", Sources: []string{"address.address", "address.street"}, Required: true},
		{Name: "city", Sources: []string{"address.city"}, Required: true},
		{Name: "postal_code", Sources: []string{"address.postalCode"}, Required: true},
	}

	productColumns = []Column{
		{Name: "product_id", Sources: []string{"id"}, Required: true},
		{Name: "name", Sources: []string{"title"}, Required: true},
		{Name: "category", Sources: []string{"category"}, Required: true},
		{Name: "brand", Sources: []string{"brand"}, Required: true},
		{Name: "price", Sources: []string{"price"}, Required: true},
	}

	cartColumns = []Column{
		{Name: "cart_id", Sources: []string{"id"}, Required: true},
		{Name: "user_id", Sources: []string{"userId"}, Required: true},
	}

	lineItemColumns = []Column{
		{Name: "product_id", Sources: []string{"id"}, Required: true},
		{Name: "name", Sources: []string{"title"}, Required: true},
		{Name: "quantity", Sources: []string{"quantity"}, Required: true},
		{Name: "price", Sources: []string{"price"}, Required: true},
	}

	cartOutput = []string{"cart_id", "user_id", "product_id", "name", "quantity", "price", "total_cart_value"}
)

// Transformer reshapes raw documents into flat tables.
type Transformer struct {
	Store ArtifactStore
}

func NewTransformer(store ArtifactStore) *Transformer {
	return &Transformer{Store: store}
}

// Transform downloads the raw artifact at sourcePath and reshapes it.
func (t *Transformer) Transform(ctx context.Context, entity models.Entity, sourcePath string) (*models.Table, error) {
	op := "transform " + entity.String()
	logger.Infof("Transforming %s from '%s'", entity, sourcePath)

	data, err := t.Store.Get(ctx, sourcePath)
	if err != nil {
		logger.Errorf("Failed to download %s: %v", sourcePath, err)
		return nil, newError(KindStorage, op, err)
	}

	body, err := decodeJSON(bytes.NewReader(data))
	if err != nil {
		logger.Errorf("Failed to decode JSON in %s: %v", sourcePath, err)
		return nil, newError(KindDecode, op, err)
	}

	table, err := TransformDocument(entity, body)
	if err != nil {
		logger.Errorf("Failed to transform %s: %v", entity, err)
		return nil, err
	}
	logger.Infof("Transformed %s: %d rows", entity, table.Len())
	return table, nil
}

// TransformToCSV runs Transform and writes the result to csvPath. When the
// transformer has a store the same bytes are uploaded to
// transformed/{entity}_transformed.csv.
func (t *Transformer) TransformToCSV(ctx context.Context, entity models.Entity, sourcePath, csvPath string) (*models.Table, error) {
	table, err := t.Transform(ctx, entity, sourcePath)
	if err != nil {
		return nil, err
	}

	op := "transform " + entity.String()
	data, err := EncodeCSV(table)
	if err != nil {
		return nil, newError(KindStorage, op, err)
	}
	if err := writeFileAtomic(csvPath, data); err != nil {
		logger.Errorf("Failed to save CSV file '%s': %v", csvPath, err)
		return nil, newError(KindStorage, op, err)
	}
	logger.Infof("Saved %d rows to %s", table.Len(), csvPath)

	if t.Store != nil {
		path := models.TransformedPath(entity)
		if err := t.Store.Put(ctx, path, "text/csv", data); err != nil {
			logger.Errorf("Failed to upload %s: %v", path, err)
			return nil, newError(KindStorage, op, err)
		}
	}
	return table, nil
}

// TransformDocument is the pure part of Transform.
func TransformDocument(entity models.Entity, body interface{}) (*models.Table, error) {
	op := "transform " + entity.String()
	records, err := unwrapRecords(entity, body)
	if err != nil {
		return nil, newError(KindSchema, op, err)
	}

	var table *models.Table
	switch entity {
	case models.Users:
		table, err = transformUsers(records)
	case models.Products:
		table, err = transformProducts(records)
	case models.Carts:
		table, err = transformCarts(records)
	default:
		return nil, errorf(KindConfiguration, op, "unknown entity %q", entity)
	}
	if err != nil {
		return nil, newError(KindSchema, op, err)
	}
	table.Entity = entity
	return table, nil
}

func transformUsers(records []map[string]interface{}) (*models.Table, error) {
	flat := flattenAll(records)
	if err := NewValidator(userColumns).ValidateBatch(flat); err != nil {
		return nil, err
	}
	return selectColumns(flat, userColumns), nil
}

func transformProducts(records []map[string]interface{}) (*models.Table, error) {
	flat := flattenAll(records)
	if err := NewValidator(productColumns).ValidateBatch(flat); err != nil {
		return nil, err
	}

	table := selectColumns(flat, productColumns)
	priceIdx := len(productColumns) - 1
	kept := table.Rows[:0]
	dropped := 0
	for _, row := range table.Rows {
		price, err := utils.ConvertToFloat(row[priceIdx])
		if err != nil {
			dropped++
			continue
		}
		if price > PriceThreshold {
			row[priceIdx] = price
			kept = append(kept, row)
		}
	}
	if dropped > 0 {
		logger.Warnf("Dropped %d products with a non-numeric price", dropped)
	}
	table.Rows = kept
	logger.Infof("Filtered products count: %d", len(kept))
	return table, nil
}

func transformCarts(records []map[string]interface{}) (*models.Table, error) {
	if err := NewValidator(cartColumns).ValidateBatch(records); err != nil {
		return nil, err
	}

	type lineItem struct {
		cart map[string]interface{}
		item map[string]interface{}
		key  string
	}

	var items []map[string]interface{}
	var lines []lineItem
	for i, cart := range records {
		products, ok := cart["products"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("'products' array not found in cart record %d", i)
		}
		for j, p := range products {
			item, ok := p.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("cart record %d: line item %d is not an object", i, j)
			}
			item = flatten(item)
			items = append(items, item)
			lines = append(lines, lineItem{cart: cart, item: item, key: utils.FormatScalar(pick(cart, cartColumns[0]))})
		}
	}
	if err := NewValidator(lineItemColumns).ValidateBatch(items); err != nil {
		return nil, err
	}

	totals := make(map[string]float64)
	for _, l := range lines {
		// items without a numeric quantity and price add nothing to the sum
		qty, qErr := utils.ConvertToFloat(pick(l.item, lineItemColumns[2]))
		price, pErr := utils.ConvertToFloat(pick(l.item, lineItemColumns[3]))
		if qErr != nil || pErr != nil {
			continue
		}
		totals[l.key] += qty * price
	}

	table := &models.Table{Columns: append([]string(nil), cartOutput...)}
	for _, l := range lines {
		table.Rows = append(table.Rows, []interface{}{
			pick(l.cart, cartColumns[0]),
			pick(l.cart, cartColumns[1]),
			pick(l.item, lineItemColumns[0]),
			pick(l.item, lineItemColumns[1]),
			pick(l.item, lineItemColumns[2]),
			pick(l.item, lineItemColumns[3]),
			totals[l.key],
		})
	}
	logger.Debugf("Computed totals for %d carts", len(totals))
	return table, nil
}

func selectColumns(records []map[string]interface{}, cols []Column) *models.Table {
	table := &models.Table{Columns: make([]string, len(cols))}
	for i, c := range cols {
		table.Columns[i] = c.Name
	}
	for _, r := range records {
		row := make([]interface{}, len(cols))
		for i, c := range cols {
			row[i] = pick(r, c)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// unwrapRecords accepts a list of objects or an object holding that list under
// the entity's own key.
func unwrapRecords(entity models.Entity, body interface{}) ([]map[string]interface{}, error) {
	if obj, ok := body.(map[string]interface{}); ok {
		inner, found := obj[entity.String()]
		if !found {
			return nil, fmt.Errorf("object does not contain the expected %q key", entity)
		}
		body = inner
	}

	list, ok := body.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of %s records, got %T", entity, body)
	}
	records := make([]map[string]interface{}, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
		records = append(records, rec)
	}
	return records, nil
}

func flattenAll(records []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, len(records))
	for i, r := range records {
		out[i] = flatten(r)
	}
	return out
}

// flatten joins nested object keys with '.'; arrays are kept as values.
func flatten(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	flattenInto(out, "", record)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if nested, ok := m[k].(map[string]interface{}); ok {
			flattenInto(out, name, nested)
			continue
		}
		out[name] = m[k]
	}
}
