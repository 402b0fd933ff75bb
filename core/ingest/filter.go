package ingest

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"go.uber.org/zap"
)

// FilterByKeywords keeps candidates whose title or description contains at
// least one keyword, ignoring case. Candidates that are not objects, or
// whose fields have the wrong type, are skipped.
func FilterByKeywords(candidates []json.RawMessage, keywords []string, log *zap.Logger) []Video {
	if len(candidates) == 0 {
		return nil
	}
	fold := cases.Fold()
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			folded = append(folded, fold.String(k))
		}
	}

	var out []Video
	for i, raw := range candidates {
		if !isObject(raw) {
			log.Debug("skipping non-object candidate", zap.Int("index", i))
			continue
		}
		var v Video
		if err := json.Unmarshal(raw, &v); err != nil {
			log.Warn("skipping malformed candidate", zap.Int("index", i), zap.Error(err))
			continue
		}
		title := fold.String(v.Title)
		description := fold.String(v.Description)
		for _, k := range folded {
			if strings.Contains(title, k) || strings.Contains(description, k) {
				out = append(out, v)
				break
			}
		}
	}
	log.Info("filtering done",
		zap.Int("kept", len(out)),
		zap.Int("candidates", len(candidates)),
		zap.Strings("keywords", keywords))
	return out
}
