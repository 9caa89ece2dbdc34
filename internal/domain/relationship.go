package domain

import "time"

// RelationshipType labels a directed edge between two tasks.
type RelationshipType string

const (
	RelSubtask  RelationshipType = "subtask"
	RelFollowup RelationshipType = "followup"
	RelRelated  RelationshipType = "related"
	RelBlocks   RelationshipType = "blocks"
)

// Valid reports whether r is a known relationship type.
func (r RelationshipType) Valid() bool {
	switch r {
	case RelSubtask, RelFollowup, RelRelated, RelBlocks:
		return true
	}
	return false
}

// Hierarchical reports whether edges of this type form the parent chain that
// ancestry traversal follows.
func (r RelationshipType) Hierarchical() bool {
	return r == RelSubtask || r == RelFollowup
}

// Relationship is a directed parent→child edge. A task may have multiple
// parents and multiple children; acyclicity of subtask/followup edges is not
// hard-enforced, so traversal must bound its depth.
type Relationship struct {
	ParentTaskID string           `json:"parent_task_id"`
	ChildTaskID  string           `json:"child_task_id"`
	Type         RelationshipType `json:"relationship_type"`
	CreatedAt    time.Time        `json:"created_at"`
}
