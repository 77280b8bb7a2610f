package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestNameUniqueIndexes(t *testing.T) {
	tests := []struct {
		name    string
		model   interface{}
		index   string
		columns []string
		where   string
	}{
		{name: "workflow", model: &Workflow{}, index: "idx_workflows_workspace_name", columns: []string{"workspace_id", "name"}, where: "deleted_at IS NULL"},
		{name: "node", model: &Node{}, index: "idx_nodes_workflow_name", columns: []string{"workflow_id", "name"}},
		{name: "trigger", model: &Trigger{}, index: "idx_triggers_workspace_name", columns: []string{"workspace_id", "name"}, where: "deleted_at IS NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := schema.Parse(tt.model, &sync.Map{}, schema.NamingStrategy{})
			require.NoError(t, err)

			idx, ok := s.ParseIndexes()[tt.index]
			require.True(t, ok, "missing index %s", tt.index)
			assert.Equal(t, "UNIQUE", idx.Class)
			assert.Equal(t, tt.where, idx.Where)

			var columns []string
			for _, f := range idx.Fields {
				columns = append(columns, f.DBName)
			}
			assert.ElementsMatch(t, tt.columns, columns)
		})
	}
}
