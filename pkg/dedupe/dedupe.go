// Package dedupe decides which candidate observations already exist in the
// destination store, so re-running an import never writes the same record
// twice.
package dedupe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mycosphaera/fungarium/internal/utils"
	"github.com/mycosphaera/fungarium/pkg/destination"
	"github.com/mycosphaera/fungarium/pkg/observation"
	"github.com/mycosphaera/fungarium/pkg/session"
)

// ChunkSize keeps each destination query under its filter-size constraints.
const ChunkSize = 20

// urlFieldVariants are the names older and newer imports have used for the
// source-URL property, tried in order.
var urlFieldVariants = []string{"URL iNat", "iNat URL", "Lien iNat", "URL"}

// DiscoverURLFields picks the URL-bearing destination fields worth probing.
// Known name variants present in the schema win; otherwise every URL-typed
// field is fair game.
func DiscoverURLFields(schema destination.Schema) []string {
	var fields []string
	for _, name := range urlFieldVariants {
		if _, ok := schema.Field(name); ok {
			fields = append(fields, name)
		}
	}
	if len(fields) == 0 {
		fields = schema.FieldsOfType(destination.FieldURL)
	}
	return fields
}

// Find reports which candidate ids already exist in the store. A stored
// record counts as a match when any probed URL field contains the id as a
// substring or equals the canonical observation URL. Any chunk failure aborts
// the whole detection: silently skipping a chunk would report a false "no
// duplicates".
func Find(ctx context.Context, store destination.Store, urlFields []string, candidates []int64) (map[int64]bool, error) {
	if len(urlFields) == 0 {
		return nil, fmt.Errorf("no URL-bearing destination fields to probe")
	}

	dups := make(map[int64]bool)
	for _, chunk := range chunkIDs(candidates, ChunkSize) {
		filter := buildFilter(urlFields, chunk)

		stored, err := store.QueryRecords(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("duplicate detection query failed: %w", err)
		}

		for _, rec := range stored {
			markMatches(rec, urlFields, chunk, dups)
		}
	}

	utils.Log.Debug("duplicate detection: ", len(dups), " of ", len(candidates), " candidates already present")
	return dups, nil
}

// Deselect flips the detected duplicates to excluded in the selection and
// returns how many it touched.
func Deselect(s *session.Session, dups map[int64]bool) int {
	n := 0
	for id := range dups {
		s.Toggle(id, false)
		n++
	}
	return n
}

func buildFilter(urlFields []string, ids []int64) destination.Filter {
	var f destination.Filter
	for _, field := range urlFields {
		for _, id := range ids {
			f.Any = append(f.Any,
				destination.Condition{Field: field, Op: destination.OpContains, Value: strconv.FormatInt(id, 10)},
				destination.Condition{Field: field, Op: destination.OpEquals, Value: observation.CanonicalURL(id)},
			)
		}
	}
	return f
}

// markMatches maps a queried record back to the candidate ids it satisfies.
func markMatches(rec destination.Stored, urlFields []string, ids []int64, dups map[int64]bool) {
	for _, field := range urlFields {
		v, ok := rec.Properties[field]
		if !ok || v == "" {
			continue
		}
		for _, id := range ids {
			if v == observation.CanonicalURL(id) || strings.Contains(v, strconv.FormatInt(id, 10)) {
				dups[id] = true
			}
		}
	}
}

func chunkIDs(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
