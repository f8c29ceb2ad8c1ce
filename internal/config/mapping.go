package config

import (
	"fmt"
	"strings"

	"github.com/BartekS5/storefront-etl/internal/etl"
	"github.com/BartekS5/storefront-etl/pkg/models"
)

// DefaultEndpointBase serves the users, products and carts collections.
const DefaultEndpointBase = "https://dummyjson.com"

// Overrides are command line values that win over the pipeline file.
type Overrides struct {
	TableID     string
	SchemaMode  string
	Disposition string
}

// Endpoints returns the default endpoint per entity with the pipeline file's
// entries applied on top. The file may also add extra sources.
func Endpoints(file *models.PipelineFile) map[string]string {
	out := make(map[string]string, len(models.Entities))
	for _, e := range models.Entities {
		out[e.String()] = DefaultEndpointBase + "/" + e.String()
	}
	if file != nil {
		for name, url := range file.Endpoints {
			out[name] = url
		}
	}
	return out
}

// ResolveTable merges defaults, the pipeline file and overrides into the load
// target for entity.
func ResolveTable(cfg *Config, file *models.PipelineFile, entity models.Entity, over Overrides) (etl.TableTarget, error) {
	var settings models.TableSettings
	if file != nil {
		settings = file.Tables[entity.String()]
	}

	target := etl.TableTarget{TableID: cfg.DefaultTableID(entity.String())}
	if settings.TableID != "" {
		target.TableID = settings.TableID
	}
	if over.TableID != "" {
		target.TableID = over.TableID
	}
	if _, err := models.ParseTableID(target.TableID); err != nil {
		return etl.TableTarget{}, fmt.Errorf("%s: %w", entity, err)
	}

	mode, err := etl.ParseSchemaMode(firstNonEmpty(over.SchemaMode, settings.SchemaMode))
	if err != nil {
		return etl.TableTarget{}, fmt.Errorf("%s: %w", entity, err)
	}
	disp, err := etl.ParseDisposition(firstNonEmpty(over.Disposition, settings.Disposition))
	if err != nil {
		return etl.TableTarget{}, fmt.Errorf("%s: %w", entity, err)
	}
	target.Options = etl.LoadOptions{Mode: mode, Disposition: disp}

	if mode == etl.SchemaExplicit {
		schema := append(models.Schema(nil), settings.Schema...)
		if len(schema) == 0 {
			schema = etl.DefaultSchema(entity)
		}
		if err := validateSchema(schema); err != nil {
			return etl.TableTarget{}, fmt.Errorf("%s: %w", entity, err)
		}
		target.Options.Schema = schema
	}
	return target, nil
}

// ResolveTables resolves every entity in entities.
func ResolveTables(cfg *Config, file *models.PipelineFile, entities []models.Entity, over Overrides) (map[models.Entity]etl.TableTarget, error) {
	if over.TableID != "" && len(entities) > 1 {
		return nil, fmt.Errorf("a table id override needs exactly one entity, got %d", len(entities))
	}
	out := make(map[models.Entity]etl.TableTarget, len(entities))
	for _, e := range entities {
		t, err := ResolveTable(cfg, file, e, over)
		if err != nil {
			return nil, err
		}
		out[e] = t
	}
	return out, nil
}

func validateSchema(schema models.Schema) error {
	seen := make(map[string]bool, len(schema))
	for i := range schema {
		f := &schema[i]
		if f.Name == "" {
			return fmt.Errorf("schema field %d has no name", i+1)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true

		f.Type = strings.ToUpper(f.Type)
		switch f.Type {
		case models.TypeString, models.TypeInteger, models.TypeFloat:
		case "":
			f.Type = models.TypeString
		default:
			return fmt.Errorf("schema field %q: unsupported type %q", f.Name, f.Type)
		}
		f.Mode = strings.ToUpper(f.Mode)
		switch f.Mode {
		case models.ModeRequired, models.ModeNullable:
		case "":
			f.Mode = models.ModeNullable
		default:
			return fmt.Errorf("schema field %q: unsupported mode %q", f.Name, f.Mode)
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
