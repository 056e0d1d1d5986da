package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Experiences")
	require.NoError(t, err)
	assert.Equal(t, KindExperience, k)

	k, err = ParseKind("edu")
	require.NoError(t, err)
	assert.Equal(t, KindEducation, k)

	_, err = ParseKind("hobby")
	assert.Error(t, err)
}

func TestKindKey(t *testing.T) {
	assert.Equal(t, "cv-vault-exp", KindExperience.Key())
	assert.Equal(t, "cv-vault-edu", KindEducation.Key())
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("physics")
	assert.True(t, ok)
	assert.Equal(t, CategoryPhysics, c)

	_, ok = ParseCategory("Biology")
	assert.False(t, ok)
	assert.Len(t, Categories(), 6)
}

func TestExperienceInput_Validate(t *testing.T) {
	valid := ExperienceInput{Title: "Research Project", Category: CategoryMath, Challenge: "X", Learning: "Y"}
	assert.NoError(t, valid.Validate())

	cases := map[string]ExperienceInput{
		"title":     {Title: "  ", Challenge: "X", Learning: "Y"},
		"challenge": {Title: "T", Learning: "Y"},
		"learning":  {Title: "T", Challenge: "X"},
		"category":  {Title: "T", Challenge: "X", Learning: "Y", Category: "Biology"},
	}
	for field, in := range cases {
		err := in.Validate()
		require.Error(t, err, field)
		assert.True(t, errors.Is(err, ErrValidation))

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, field, verr.Field)
		assert.Equal(t, KindExperience, verr.Kind)
	}
}

func TestEducationInput_Validate(t *testing.T) {
	assert.NoError(t, EducationInput{School: "Hill Academy"}.Validate())

	err := EducationInput{Qualification: "A-Levels"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "education school: is required", err.Error())
}

func TestExperienceJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Experience{ID: "1", Title: "T", Category: CategoryAI})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "title", "category", "date", "challenge", "learning", "link"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "reflection")
}
