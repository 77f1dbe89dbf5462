package sidebar

import "github.com/televita-health/televita/internal/rbac"

// Filter returns the entries visible to a user, preserving display order.
// An entry is visible when it is flagged AlwaysVisible or when the grants
// allow read or manage on its module. Entries with neither a module nor the
// flag never render.
func Filter(entries []Entry, grants rbac.Grants) []Entry {
	visible := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.AlwaysVisible {
			visible = append(visible, e)
			continue
		}
		if e.Module == "" {
			continue
		}
		if grants.CanView(e.Module) {
			visible = append(visible, e)
		}
	}
	return visible
}
