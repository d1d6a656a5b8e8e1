package template

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), slog.Default())
}

func sampleTemplate(name string) *WorkflowTemplate {
	return &WorkflowTemplate{
		Name:        name,
		DisplayName: "Sample",
		Description: "a two-stage flow",
		Stages: []Stage{
			{
				Name: "draft",
				Type: StagePlanning,
				Gate: GateSpec{Type: GateHumanApproval, Prompt: "approve the draft?"},
			},
			{
				Name: "ship",
				Type: StageImplementation,
				Gate: GateSpec{Type: GateAuto},
			},
		},
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(sampleTemplate("docs-flow"), "alice", "initial")
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	assert.False(t, created.Builtin)

	got, err := s.Get("docs-flow")
	require.NoError(t, err)
	assert.Equal(t, created.Stages, got.Stages)
	assert.Equal(t, 1, got.Version)
}

func TestCreateRejectsDuplicatesAndBuiltinNames(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(sampleTemplate("docs-flow"), "alice", "initial")
	require.NoError(t, err)

	_, err = s.Create(sampleTemplate("docs-flow"), "alice", "again")
	assert.ErrorIs(t, err, ErrTemplateExists)

	_, err = s.Create(sampleTemplate("feature"), "alice", "shadow attempt")
	assert.ErrorIs(t, err, ErrTemplateExists)
}

func TestGetFallsBackToBuiltin(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get("feature")
	require.NoError(t, err)
	assert.True(t, got.Builtin)

	_, err = s.Get("no-such-template")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestUpdateBuiltinCreatesShadow(t *testing.T) {
	s := newTestStore(t)

	base, err := s.Get("feature")
	require.NoError(t, err)

	edited := base.Clone()
	edited.Description = "edited locally"
	updated, err := s.Update(edited, "alice", "local tweak")
	require.NoError(t, err)
	assert.Equal(t, base.Version+1, updated.Version)
	assert.False(t, updated.Builtin)

	// The shadow now wins over the compiled-in catalog.
	got, err := s.Get("feature")
	require.NoError(t, err)
	assert.Equal(t, "edited locally", got.Description)
	assert.False(t, got.Builtin)

	// The pre-edit built-in content is snapshotted as its own version.
	snap, err := s.GetVersion("feature", base.Version)
	require.NoError(t, err)
	assert.Equal(t, base.Stages, snap.Template.Stages)
}

func TestDeleteShadowRestoresBuiltin(t *testing.T) {
	s := newTestStore(t)

	base, err := s.Get("feature")
	require.NoError(t, err)
	edited := base.Clone()
	edited.Description = "edited locally"
	_, err = s.Update(edited, "alice", "local tweak")
	require.NoError(t, err)

	require.NoError(t, s.Delete("feature"))

	got, err := s.Get("feature")
	require.NoError(t, err)
	assert.True(t, got.Builtin)

	// History is append-only and survives shadow removal.
	versions, err := s.ListVersions("feature")
	require.NoError(t, err)
	assert.NotEmpty(t, versions)
}

func TestDeleteBuiltinWithoutShadowFails(t *testing.T) {
	s := newTestStore(t)

	err := s.Delete("hotfix")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDeleteUnknownTemplate(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Delete("no-such-template"), ErrTemplateNotFound)
}

func TestRestoreVersionAppendsHistory(t *testing.T) {
	s := newTestStore(t)

	v1, err := s.Create(sampleTemplate("docs-flow"), "alice", "initial")
	require.NoError(t, err)

	edited := v1.Clone()
	edited.Stages = append(edited.Stages, Stage{
		Name: "retro",
		Type: StageReview,
		Gate: GateSpec{Type: GateHumanApproval, Prompt: "close it out?"},
	})
	v2, err := s.Update(edited, "bob", "add retro stage")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	restored, err := s.RestoreVersion("docs-flow", 1, "alice", "roll back retro")
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, v1.Stages, restored.Stages)

	// Restoring never rewrites history; versions 1 and 2 keep their content.
	versions, err := s.ListVersions("docs-flow")
	require.NoError(t, err)
	require.Len(t, versions, 3)

	snap2, err := s.GetVersion("docs-flow", 2)
	require.NoError(t, err)
	assert.Len(t, snap2.Template.Stages, 3)

	_, err = s.GetVersion("docs-flow", 9)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestDuplicateStartsAtVersionOne(t *testing.T) {
	s := newTestStore(t)

	dup, err := s.Duplicate("feature", "feature-copy", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, dup.Version)
	assert.False(t, dup.Builtin)

	src, err := s.Get("feature")
	require.NoError(t, err)
	assert.Equal(t, src.Stages, dup.Stages)
}

func TestListMergesBuiltinsAndCustoms(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(sampleTemplate("docs-flow"), "alice", "initial")
	require.NoError(t, err)

	all, err := s.List()
	require.NoError(t, err)

	names := make(map[string]bool, len(all))
	for _, tpl := range all {
		names[tpl.Name] = true
	}
	assert.True(t, names["docs-flow"])
	assert.True(t, names["feature"])
	assert.True(t, names["hotfix"])
}
