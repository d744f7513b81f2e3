package hierarchy

import (
	"sort"

	"github.com/google/uuid"

	"ogsm-service/models"
)

// DefaultTreeDepth caps how many levels BuildTree will expand. Writes are
// validated so the relation is acyclic; the cap only guards a corrupt table.
const DefaultTreeDepth = 64

// BuildTree flattens the forest breadth-first. Roots are level 0 and each
// child sits one level below its parent. The result is ordered by level,
// then order_index; ties keep the order in which parents were reached.
// Components whose parent does not exist are not reachable and are omitted.
func BuildTree(components []*models.Component, maxDepth int) []models.TreeNode {
	if maxDepth <= 0 {
		maxDepth = DefaultTreeDepth
	}
	ix := NewIndex(components)

	out := make([]models.TreeNode, 0, ix.Len())
	visited := make(map[uuid.UUID]struct{}, ix.Len())
	level := ix.childrenByParent[rootKey]
	for depth := 0; depth < maxDepth && len(level) > 0; depth++ {
		var next []*models.Component
		start := len(out)
		for _, c := range level {
			if _, seen := visited[c.ID]; seen {
				continue
			}
			visited[c.ID] = struct{}{}
			out = append(out, models.NewTreeNode(c, depth))
			next = append(next, ix.childrenByParent[c.ID]...)
		}
		row := out[start:]
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].OrderIndex < row[j].OrderIndex
		})
		level = next
	}
	return out
}
