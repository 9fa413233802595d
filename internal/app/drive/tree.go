package drive

import (
	folderstore "github.com/dalemusser/stratadrive/internal/app/store/folder"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// tree is an in-memory index of one owner's folders, loaded once per
// operation. Walks are iterative and guard against revisiting a node, so a
// corrupt parent chain cannot loop.
type tree struct {
	nodes    map[primitive.ObjectID]folderstore.Node
	children map[primitive.ObjectID][]primitive.ObjectID
}

func newTree(nodes []folderstore.Node) *tree {
	t := &tree{
		nodes:    make(map[primitive.ObjectID]folderstore.Node, len(nodes)),
		children: make(map[primitive.ObjectID][]primitive.ObjectID),
	}
	for _, n := range nodes {
		t.nodes[n.ID] = n
		if n.ParentID != nil {
			t.children[*n.ParentID] = append(t.children[*n.ParentID], n.ID)
		}
	}
	return t
}

// isActive reports whether id exists and is not trashed.
func (t *tree) isActive(id primitive.ObjectID) bool {
	n, ok := t.nodes[id]
	return ok && !n.IsDeleted
}

// ancestors returns the parent chain of id, nearest first, excluding id.
func (t *tree) ancestors(id primitive.ObjectID) []primitive.ObjectID {
	var out []primitive.ObjectID
	seen := map[primitive.ObjectID]bool{id: true}
	n, ok := t.nodes[id]
	for ok && n.ParentID != nil && !seen[*n.ParentID] {
		pid := *n.ParentID
		seen[pid] = true
		out = append(out, pid)
		n, ok = t.nodes[pid]
	}
	return out
}

// wouldCycle reports whether making newParent the parent of id would put
// id on its own ancestor chain.
func (t *tree) wouldCycle(id, newParent primitive.ObjectID) bool {
	if id == newParent {
		return true
	}
	for _, a := range t.ancestors(newParent) {
		if a == id {
			return true
		}
	}
	return false
}

// subtree returns root followed by every descendant reachable through
// folders accepted by follow. root itself is always included; follow
// decides which children are collected and descended into.
func (t *tree) subtree(root primitive.ObjectID, follow func(folderstore.Node) bool) []primitive.ObjectID {
	out := []primitive.ObjectID{root}
	seen := map[primitive.ObjectID]bool{root: true}
	queue := []primitive.ObjectID{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, cid := range t.children[cur] {
			if seen[cid] {
				continue
			}
			seen[cid] = true
			if !follow(t.nodes[cid]) {
				continue
			}
			out = append(out, cid)
			queue = append(queue, cid)
		}
	}
	return out
}

func active(n folderstore.Node) bool { return !n.IsDeleted }

func trashed(n folderstore.Node) bool { return n.IsDeleted }

// trashedBy accepts trashed folders whose soft-delete was caused by root.
func trashedBy(root primitive.ObjectID) func(folderstore.Node) bool {
	return func(n folderstore.Node) bool {
		return n.IsDeleted && n.TrashRootID != nil && *n.TrashRootID == root
	}
}
