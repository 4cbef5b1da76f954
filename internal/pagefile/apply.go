package pagefile

import (
	"fmt"

	"linkpage/api/internal/editor"
)

// Summary counts what Apply changed in the working copy.
type Summary struct {
	Fields    int
	Added     int
	Removed   int
	Replaced  int
	Reordered bool
}

func (s Summary) Changed() bool {
	return s.Fields > 0 || s.Added > 0 || s.Removed > 0 || s.Replaced > 0 || s.Reordered
}

func (s Summary) String() string {
	return fmt.Sprintf("%d fields, %d added, %d removed, %d replaced, reordered=%t",
		s.Fields, s.Added, s.Removed, s.Replaced, s.Reordered)
}

// Apply edits the loaded working copy until it matches page. Entries are
// matched to existing items by id; an entry whose content differs from its
// item replaces it, since items have no update call. Items missing from the
// page are removed and the result is put in page order. Nothing is sent to
// the server; the caller saves.
func Apply(ed *editor.Editor, page Page) (Summary, error) {
	var summary Summary

	current := ed.State().Fields
	for _, change := range []struct {
		name  string
		want  *string
		value string
	}{
		{editor.FieldDisplayName, page.Profile.DisplayName, current.DisplayName},
		{editor.FieldBio, page.Profile.Bio, current.Bio},
		{editor.FieldAvatarURL, page.Profile.AvatarURL, current.AvatarURL},
		{editor.FieldTheme, page.Profile.Theme, current.Theme},
	} {
		if change.want == nil || *change.want == change.value {
			continue
		}
		if err := ed.SetField(change.name, *change.want); err != nil {
			return summary, err
		}
		summary.Fields++
	}

	currentItems := ed.State().Items
	existing := make(map[string]editor.Item, len(currentItems))
	for _, item := range currentItems {
		existing[item.ID.Value()] = item
	}

	seen := make(map[string]bool, len(page.Items))
	for idx, entry := range page.Items {
		if entry.ID == "" {
			continue
		}
		if seen[entry.ID] {
			return summary, fmt.Errorf("%w: items[%d]: duplicate id %s", ErrInvalidPage, idx, entry.ID)
		}
		if _, ok := existing[entry.ID]; !ok {
			return summary, fmt.Errorf("%w: items[%d]: unknown id %s", ErrInvalidPage, idx, entry.ID)
		}
		seen[entry.ID] = true
	}

	for _, item := range currentItems {
		if seen[item.ID.Value()] {
			continue
		}
		if err := ed.Remove(item.ID); err != nil {
			return summary, err
		}
		summary.Removed++
	}

	sequence := make([]editor.ItemID, 0, len(page.Items))
	for _, entry := range page.Items {
		if entry.ID != "" {
			item := existing[entry.ID]
			if matches(item, entry) {
				sequence = append(sequence, item.ID)
				continue
			}
			if err := ed.Remove(item.ID); err != nil {
				return summary, err
			}
			summary.Replaced++
		} else {
			summary.Added++
		}
		added, err := ed.Insert(editor.Item{
			Kind:   editor.Kind(entry.Kind),
			Title:  entry.Title,
			Target: entry.URL,
		}, true)
		if err != nil {
			return summary, err
		}
		sequence = append(sequence, added.ID)
	}

	items := ed.State().Items
	inOrder := len(items) == len(sequence)
	for idx := range items {
		if !inOrder || items[idx].ID != sequence[idx] || items[idx].Position != idx {
			inOrder = false
			break
		}
	}
	if !inOrder {
		if err := ed.Reorder(sequence); err != nil {
			return summary, err
		}
		summary.Reordered = true
	}
	return summary, nil
}

func matches(item editor.Item, entry Entry) bool {
	return string(item.Kind) == entry.Kind && item.Title == entry.Title && item.Target == entry.URL
}
