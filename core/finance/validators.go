package finance

import (
	validatorLib "github.com/go-playground/validator/v10"

	"github.com/SherMarri/schooly-api/core"
)

func init() {
	core.Validate.RegisterStructValidation(newChallanBatchValidation, NewChallanBatch{})
}

// newChallanBatchValidation enforces the target fields that the target_type
// makes mandatory.
func newChallanBatchValidation(sl validatorLib.StructLevel) {
	nb := sl.Current().Interface().(NewChallanBatch)

	switch nb.TargetType {
	case TargetIndividuals:
		if len(nb.StudentIDs) == 0 {
			sl.ReportError(nb.StudentIDs, "student_ids", "StudentIDs", "required", "")
		}
	case TargetGroup:
		if nb.Group.GradeID == 0 {
			sl.ReportError(nb.Group.GradeID, "group.grade_id", "GradeID", "required", "")
			return
		}
		if nb.Group.GradeID != AllTarget && nb.Group.SectionID == 0 {
			sl.ReportError(nb.Group.SectionID, "group.section_id", "SectionID", "required", "")
		}
	}
}
