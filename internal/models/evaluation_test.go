package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestEvaluationStateChanged(t *testing.T) {
	base := EvaluationState{HomeworkDone: false, ClassScore: nil, Notes: nil}

	t.Run("empty notes equal nil notes", func(t *testing.T) {
		edited := EvaluationState{HomeworkDone: false, ClassScore: nil, Notes: strPtr("")}
		assert.False(t, base.Changed(edited))
	})

	t.Run("zero score differs from nil score", func(t *testing.T) {
		edited := EvaluationState{HomeworkDone: false, ClassScore: intPtr(0), Notes: nil}
		assert.True(t, base.Changed(edited))
	})

	t.Run("homework flip", func(t *testing.T) {
		edited := EvaluationState{HomeworkDone: true}
		assert.True(t, base.Changed(edited))
	})

	t.Run("score value change", func(t *testing.T) {
		a := EvaluationState{ClassScore: intPtr(80)}
		b := EvaluationState{ClassScore: intPtr(85)}
		assert.True(t, a.Changed(b))
		assert.False(t, a.Changed(EvaluationState{ClassScore: intPtr(80)}))
	})

	t.Run("notes text change", func(t *testing.T) {
		a := EvaluationState{Notes: strPtr("good work")}
		assert.True(t, a.Changed(EvaluationState{Notes: strPtr("needs focus")}))
		assert.False(t, a.Changed(EvaluationState{Notes: strPtr("good work")}))
	})

	t.Run("identical states", func(t *testing.T) {
		assert.False(t, base.Changed(base))
	})
}

func TestAttendanceStatusPersisted(t *testing.T) {
	assert.False(t, AttendanceStatusPresent.Persisted())
	assert.True(t, AttendanceStatusAbsent.Persisted())
	assert.True(t, AttendanceStatusLate.Persisted())
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("teacher")
	assert.True(t, ok)
	assert.Equal(t, RoleTeacher, role)

	_, ok = ParseRole("TEACHER")
	assert.False(t, ok)
	_, ok = ParseRole("student")
	assert.False(t, ok)
}
