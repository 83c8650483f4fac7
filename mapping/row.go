package mapping

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// DocumentData maps the whole source document, as JSON text, into a column.
const DocumentData = "documentData"

// MapDocument builds a row for entity from a raw JSON source document using
// the entity field mappings (column -> source path). Without field mappings
// the document's top level fields are used for known columns. The identity
// column falls back to key when the source does not provide it.
func MapDocument(entity *PersistentEntity, key interface{}, raw []byte) (map[string]interface{}, error) {
	var source map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &source); err != nil {
			return nil, errors.Wrapf(ErrInvalidDocument, "entity %s: %v", entity.Name, err)
		}
	}
	if source == nil {
		source = make(map[string]interface{})
	}

	row := make(map[string]interface{}, len(entity.Columns))
	if len(entity.FieldMappings) == 0 {
		for column, value := range source {
			if entity.HasColumn(column) {
				row[column] = value
			}
		}
	} else {
		for column, sourcePath := range entity.FieldMappings {
			if sourcePath == DocumentData {
				row[column] = string(raw)
			} else if value, exists := nestedField(source, sourcePath); exists {
				row[column] = value
			} else {
				row[column] = nil
			}
		}
	}

	if key != nil && row[entity.Identity()] == nil {
		row[entity.Identity()] = key
	}
	return row, nil
}

// nestedField resolves dotted paths such as "meta.id".
func nestedField(document map[string]interface{}, path string) (interface{}, bool) {
	if value, exists := document[path]; exists {
		return value, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	parts := strings.Split(path, ".")
	current := document
	for _, part := range parts[:len(parts)-1] {
		nested, ok := current[part].(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = nested
	}
	value, exists := current[parts[len(parts)-1]]
	return value, exists
}
