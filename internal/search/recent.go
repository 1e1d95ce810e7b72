package search

import (
	"time"

	"github.com/rewind-cli/rewind/internal/index"
)

// Recent lists the most recently modified sessions as results, newest first.
// The rows carry no matched message (MessageIdx is -1) and no score; the
// list views show them whenever the query box is empty.
func Recent(st *index.Store, limit int, opts Options) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	sn, err := st.Snapshot()
	if err != nil {
		return nil, err
	}
	defer sn.Close()

	filter := index.DocFilter{Source: opts.Source, Scope: opts.Scope}
	if !opts.Since.IsZero() {
		filter.Since = opts.Since.Unix()
	}

	rows, err := sn.RecentSessions(limit, filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			SessionID:    row.ID,
			Source:       row.Source,
			ProjectPath:  row.ProjectPath,
			Summary:      row.Summary,
			FilePath:     row.FilePath,
			LastModified: time.Unix(row.LastModified, 0),
			MessageIdx:   -1,
		})
	}
	return results, nil
}
