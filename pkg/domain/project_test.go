package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProject() *Project {
	return &Project{
		ID:   "proj-1",
		Name: "demo",
		Phases: []Phase{
			{
				ID:   "build",
				Name: "Build",
				Tasks: []Task{
					{ID: "compile", Name: "Compile", Weight: 2},
					{ID: "link", Name: "Link", Dependencies: []string{"compile"}},
				},
			},
			{
				ID:           "test",
				Name:         "Test",
				Dependencies: []string{"build"},
			},
		},
	}
}

func TestValidateProjectAcceptsWellFormedInput(t *testing.T) {
	require.NoError(t, ValidateProject(validProject()))
}

func TestValidateProjectRejectsNil(t *testing.T) {
	err := ValidateProject(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateProjectRejectsMissingFields(t *testing.T) {
	p := validProject()
	p.Phases[0].Tasks[0].ID = ""

	err := ValidateProject(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "required")
}

func TestValidateProjectRejectsEmptyPhaseList(t *testing.T) {
	p := validProject()
	p.Phases = nil

	err := ValidateProject(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateProjectRejectsDuplicatePhaseIDs(t *testing.T) {
	p := validProject()
	p.Phases[1].ID = "build"

	err := ValidateProject(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "build", derr.PhaseID)
}

func TestValidateProjectRejectsDuplicateTaskIDsWithinPhase(t *testing.T) {
	p := validProject()
	p.Phases[0].Tasks[1].ID = "compile"

	err := ValidateProject(p)
	require.Error(t, err)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "build", derr.PhaseID)
	assert.Equal(t, "compile", derr.TaskID)
}

func TestValidateProjectAllowsSameTaskIDAcrossPhases(t *testing.T) {
	p := validProject()
	p.Phases[1].Tasks = []Task{{ID: "compile", Name: "Compile again"}}

	require.NoError(t, ValidateProject(p))
}

func TestEffectiveWeightDefaults(t *testing.T) {
	task := Task{ID: "t", Name: "t"}
	assert.Equal(t, 1.0, task.EffectiveWeight())

	empty := Phase{ID: "p", Name: "p"}
	assert.Equal(t, 1.0, empty.EffectiveWeight())

	p := validProject()
	assert.Equal(t, 3.0, p.Phases[0].EffectiveWeight())
}

func TestErrorMessageCarriesLocation(t *testing.T) {
	err := &Error{Kind: ErrExecution, PhaseID: "build", TaskID: "compile", Msg: "boom"}
	assert.Equal(t, "execution error: boom (phase build, task compile)", err.Error())
	assert.True(t, errors.Is(err, ErrExecution))

	bare := Errorf(ErrDependency, "no launchable phases")
	assert.True(t, errors.Is(bare, ErrDependency))
	assert.Equal(t, "dependency error: no launchable phases", bare.Error())
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
}
