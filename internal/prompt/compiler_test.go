package prompt

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedTemplatesLoad(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	want := []ID{Canonicalize, Coach, Plan21, QuizForm, QuizSummary, Safety}
	assert.Equal(t, want, c.IDs())

	for _, id := range want {
		p, err := c.Render(id, nil)
		require.NoError(t, err, id)
		assert.NotEmpty(t, p.System, id)
		assert.NotEmpty(t, p.User, id)
		assert.NotContains(t, p.User, "<no value>", id)
	}
}

func TestRenderSubstitutesFields(t *testing.T) {
	c := MustCompiler()

	p, err := c.Render(Safety, Fields{FieldUserText: "I smoke too much"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p.User, "User: I smoke too much"))

	p, err = c.Render(Plan21, Fields{
		FieldQuizSummaryJSON:  `{"canonical_habit_name":"vaping"}`,
		FieldCategoryGuidance: "Category: Nicotine",
	})
	require.NoError(t, err)
	assert.Contains(t, p.User, `{"canonical_habit_name":"vaping"}`)
	assert.Contains(t, p.User, "Category: Nicotine")
}

func TestRenderMissingFieldsAreEmpty(t *testing.T) {
	c := MustCompiler()
	p, err := c.Render(Coach, Fields{FieldUserMessage: "hello"})
	require.NoError(t, err)
	assert.Contains(t, p.User, "history_text:\n\n")
	assert.True(t, strings.HasSuffix(p.User, "user_message:\nhello"))
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := MustCompiler().Render("nope", nil)
	assert.Error(t, err)
}

func TestNewCompilerFSErrors(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
	}{
		{"missing id", fstest.MapFS{"t/a.yaml": {Data: []byte("template: hi\n")}}},
		{"bad yaml", fstest.MapFS{"t/a.yaml": {Data: []byte("id: [\n")}}},
		{"bad template", fstest.MapFS{"t/a.yaml": {Data: []byte("id: a\ntemplate: \"{{.x\"\n")}}},
		{"duplicate", fstest.MapFS{
			"t/a.yaml": {Data: []byte("id: a\ntemplate: x\n")},
			"t/b.yaml": {Data: []byte("id: a\ntemplate: y\n")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompilerFS(tt.files, "t")
			assert.Error(t, err)
		})
	}

	_, err := NewCompilerFS(fstest.MapFS{}, "absent")
	assert.Error(t, err)
}

func TestStrictness(t *testing.T) {
	assert.Empty(t, StrictnessDirective(0))
	assert.Empty(t, StrictnessDirective(-1))
	assert.NotEmpty(t, StrictnessDirective(1))
	assert.NotEqual(t, StrictnessDirective(1), StrictnessDirective(2))
	assert.Equal(t, StrictnessDirective(2), StrictnessDirective(9))

	p := Prompt{User: "body\n"}
	assert.Equal(t, p, p.WithStrictness(0))
	escalated := p.WithStrictness(1)
	assert.Equal(t, "body\n\n"+StrictnessDirective(1), escalated.User)
}
