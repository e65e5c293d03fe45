package core

import (
	"encoding/json"
	"fmt"
)

// Deliverable names a final artifact a caller can ask to have delivered.
type Deliverable string

// Deliverable keys accepted in a results manifest.
const (
	DeliverablePointCloud   Deliverable = "POINT_CLOUD"
	DeliverableMesh         Deliverable = "MESH"
	DeliverableFilteredMesh Deliverable = "FILTERED_MESH"
	DeliverableTexturedMesh Deliverable = "TEXTURED_MESH"
	DeliverableTexturePNG   Deliverable = "TEXTURE_PNG"
	DeliverableTextureMTL   Deliverable = "TEXTURE_MTL"
)

// Deliverables returns every deliverable key.
func Deliverables() []Deliverable {
	return []Deliverable{
		DeliverablePointCloud,
		DeliverableMesh,
		DeliverableFilteredMesh,
		DeliverableTexturedMesh,
		DeliverableTexturePNG,
		DeliverableTextureMTL,
	}
}

// MoveReport records how one deliverable was copied to its manifest target.
type MoveReport struct {
	Exists          bool    `json:"exists"`
	CurrentLocation *string `json:"current_location"`
	MoveSuccess     bool    `json:"move_success"`
	NewLocation     *string `json:"new_location"`
}

// ExistenceReport records whether a deliverable exists, without moving it.
type ExistenceReport struct {
	Success  bool    `json:"success"`
	Location *string `json:"location"`
}

// OutputFileReport is the deliverable section of the global report. Exactly
// one of Moved and Existence is set: Moved when a manifest was applied,
// Existence otherwise.
type OutputFileReport struct {
	Moved     map[Deliverable]MoveReport
	Existence map[Deliverable]ExistenceReport
}

// MarshalJSON writes whichever form is set as a plain key → entry object.
func (r OutputFileReport) MarshalJSON() ([]byte, error) {
	if r.Moved != nil {
		return json.Marshal(r.Moved)
	}
	if r.Existence == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Existence)
}

// UnmarshalJSON detects the form from the entry fields.
func (r *OutputFileReport) UnmarshalJSON(data []byte) error {
	var probe map[Deliverable]map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("output file report: %w", err)
	}
	moved := false
	for _, fields := range probe {
		if _, ok := fields["move_success"]; ok {
			moved = true
		}
		break
	}
	if moved {
		r.Moved = make(map[Deliverable]MoveReport)
		return json.Unmarshal(data, &r.Moved)
	}
	r.Existence = make(map[Deliverable]ExistenceReport)
	return json.Unmarshal(data, &r.Existence)
}

// Count returns how many deliverables exist, and how many were reported.
func (r OutputFileReport) Count() (present, total int) {
	if r.Moved != nil {
		for _, m := range r.Moved {
			if m.Exists {
				present++
			}
		}
		return present, len(r.Moved)
	}
	for _, e := range r.Existence {
		if e.Success {
			present++
		}
	}
	return present, len(r.Existence)
}
