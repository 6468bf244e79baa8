package persistence

import "strings"

// sortSpec whitelists the ORDER BY columns of one listing. Column names
// never reach SQL unless they are in allowed.
type sortSpec struct {
	allowed      map[string]bool
	defaultField string
}

var (
	storeSort = sortSpec{
		allowed:      fieldSet("id", "created_at", "updated_at", "name", "base_url", "status", "last_sync_at"),
		defaultField: "name",
	}
	syncRecordSort = sortSpec{
		allowed:      fieldSet("id", "created_at", "updated_at", "sku", "source_item_id", "status", "last_synced_at"),
		defaultField: "updated_at",
	}
)

func fieldSet(fields ...string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// orderBy returns "<field> <ASC|DESC>, id ASC". Unknown fields fall back to
// the default and any direction other than asc sorts descending. The id
// tiebreak keeps page boundaries stable when the sort column has duplicates.
func (s sortSpec) orderBy(field, dir string) string {
	col := s.field(field)
	order := col + " " + sortDirection(dir)
	if col != "id" {
		order += ", id ASC"
	}
	return order
}

func (s sortSpec) field(field string) string {
	field = strings.TrimSpace(field)
	if s.allowed[field] {
		return field
	}
	return s.defaultField
}

func sortDirection(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return "ASC"
	}
	return "DESC"
}
