package catalog

import (
	"storefront/recommender/internal/domain"
)

// Index answers ancestor and descendant queries over a flat category list.
// A category whose parent is not part of the list is a root.
type Index struct {
	byID             map[string]domain.Category
	childrenByParent map[string][]string
}

// Build indexes categories by id and children by parent id.
func Build(categories []domain.Category) *Index {
	idx := &Index{
		byID:             make(map[string]domain.Category, len(categories)),
		childrenByParent: make(map[string][]string),
	}

	for _, c := range categories {
		if c.ID == "" {
			continue
		}
		idx.byID[c.ID] = c
	}

	for _, c := range categories {
		if c.ID == "" || c.ParentID == "" || c.ParentID == c.ID {
			continue
		}
		if _, ok := idx.byID[c.ParentID]; !ok {
			continue
		}
		idx.childrenByParent[c.ParentID] = append(idx.childrenByParent[c.ParentID], c.ID)
	}

	return idx
}

// Len returns the number of indexed categories.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byID)
}

// Contains reports whether id is a known category.
func (i *Index) Contains(id string) bool {
	if i == nil {
		return false
	}
	_, ok := i.byID[id]
	return ok
}

// Descendants returns every category below id in breadth-first order, excluding id.
func (i *Index) Descendants(id string) []string {
	if i == nil || id == "" {
		return nil
	}

	var out []string
	visited := map[string]struct{}{id: {}}
	queue := append([]string(nil), i.childrenByParent[id]...)

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		out = append(out, next)
		queue = append(queue, i.childrenByParent[next]...)
	}

	return out
}

// Ancestors returns the parent chain of id, nearest first.
func (i *Index) Ancestors(id string) []string {
	if i == nil || id == "" {
		return nil
	}

	var out []string
	visited := map[string]struct{}{id: {}}
	current, ok := i.byID[id]

	for ok && current.ParentID != "" {
		parent, known := i.byID[current.ParentID]
		if !known {
			break
		}
		if _, seen := visited[parent.ID]; seen {
			break
		}
		visited[parent.ID] = struct{}{}
		out = append(out, parent.ID)
		current = parent
	}

	return out
}

// Subtree returns id together with its descendants as a set.
func (i *Index) Subtree(id string) map[string]struct{} {
	set := make(map[string]struct{})
	if id == "" {
		return set
	}
	set[id] = struct{}{}
	for _, d := range i.Descendants(id) {
		set[d] = struct{}{}
	}
	return set
}
