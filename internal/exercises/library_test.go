package exercises

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct{ MemoryRepository }

func (failingRepo) Create(ctx context.Context, ex Exercise) (*Exercise, error) {
	return nil, errors.New("db down")
}

func seededLibrary() *Library {
	return NewLibrary(NewMemoryRepository(
		Exercise{ID: "1", Name: "Quad Set", BodyArea: "Knee", Goal: "Strength", Difficulty: "Beginner", Description: "Tighten the thigh"},
		Exercise{ID: "2", Name: "Heel Slide", BodyArea: "Knee", Goal: "Mobility", Difficulty: "Beginner"},
		Exercise{ID: "3", Name: "Pendulum", BodyArea: "Shoulder", Goal: "Mobility", Difficulty: "Beginner"},
	), nil)
}

func TestLibrarySearch(t *testing.T) {
	lib := seededLibrary()
	ctx := context.Background()

	knee, err := lib.Search(ctx, Filter{BodyArea: "knee"})
	require.NoError(t, err)
	require.Len(t, knee, 2)
	assert.Equal(t, "Heel Slide", knee[0].Name)

	mobility, err := lib.Search(ctx, Filter{Goal: "Mobility", BodyArea: "Shoulder"})
	require.NoError(t, err)
	require.Len(t, mobility, 1)
	assert.Equal(t, "3", mobility[0].ID)

	text, err := lib.Search(ctx, Filter{Query: "thigh"})
	require.NoError(t, err)
	require.Len(t, text, 1)
	assert.Equal(t, "Quad Set", text[0].Name)

	limited, err := lib.Search(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCreateCustomPersistsAndAdds(t *testing.T) {
	lib := seededLibrary()
	ctx := context.Background()
	var plan Plan

	created, err := lib.CreateCustom(ctx, &plan, CustomExercise{Name: "  Wall Sit ", BodyArea: "Knee"})
	require.NoError(t, err)
	assert.Equal(t, "Wall Sit", created.Name)
	assert.True(t, created.Custom)
	require.Len(t, plan, 1)
	assert.Equal(t, created.ID, plan[0].Exercise.ID)
	assert.Equal(t, 3, *plan[0].Sets)

	got, err := lib.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wall Sit", got.Name)
}

func TestCreateCustomRequiresName(t *testing.T) {
	repo := NewMemoryRepository()
	lib := NewLibrary(repo, nil)
	var plan Plan

	_, err := lib.CreateCustom(context.Background(), &plan, CustomExercise{Name: "   "})
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.Empty(t, plan)

	all, _ := repo.Search(context.Background(), Filter{})
	assert.Empty(t, all)
}

func TestCreateCustomStorageFailureLeavesPlanUntouched(t *testing.T) {
	lib := NewLibrary(&failingRepo{}, nil)
	var plan Plan

	_, err := lib.CreateCustom(context.Background(), &plan, CustomExercise{Name: "Bridge"})
	assert.Error(t, err)
	assert.Empty(t, plan)
}

func TestGetUnknownExercise(t *testing.T) {
	_, err := seededLibrary().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrExerciseNotFound)
}

func TestStarterCatalogIsSearchable(t *testing.T) {
	lib := NewLibrary(NewMemoryRepository(StarterCatalog()...), nil)

	knee, err := lib.Search(context.Background(), Filter{BodyArea: "knee"})
	require.NoError(t, err)
	assert.Len(t, knee, 2)

	seen := map[string]bool{}
	for _, ex := range StarterCatalog() {
		assert.NotEmpty(t, ex.Name)
		assert.False(t, seen[ex.ID], "duplicate id %s", ex.ID)
		seen[ex.ID] = true
	}
}
