package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFileReport_JSONForms(t *testing.T) {
	loc := "/out/meshing/mesh.obj"

	existence := OutputFileReport{Existence: map[Deliverable]ExistenceReport{
		DeliverableMesh:       {Success: true, Location: &loc},
		DeliverablePointCloud: {Success: false},
	}}
	data, err := json.Marshal(existence)
	require.NoError(t, err)
	assert.JSONEq(t, `{"MESH":{"success":true,"location":"/out/meshing/mesh.obj"},"POINT_CLOUD":{"success":false,"location":null}}`, string(data))

	var back OutputFileReport
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Nil(t, back.Moved)
	present, total := back.Count()
	assert.Equal(t, 1, present)
	assert.Equal(t, 2, total)

	moved := OutputFileReport{Moved: map[Deliverable]MoveReport{
		DeliverableMesh: {Exists: true, CurrentLocation: &loc, MoveSuccess: true, NewLocation: &loc},
	}}
	data, err = json.Marshal(moved)
	require.NoError(t, err)

	back = OutputFileReport{}
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.Moved)
	assert.True(t, back.Moved[DeliverableMesh].MoveSuccess)
}
