// Package repotest is the behavioural contract every repository adapter
// must satisfy. Adapter tests call Run with a constructor for an empty store.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"notes/internal/domain"
	"notes/internal/errs"
)

// Store is a backend implementing both repository ports.
type Store interface {
	domain.NoteRepository
	domain.UserRepository
}

var userSeq atomic.Int64

// Run executes the contract suite. newStore must return an empty store and
// register any cleanup on t.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateThenGet", func(t *testing.T) { testCreateThenGet(t, newStore(t)) })
	t.Run("ListByUser", func(t *testing.T) { testListByUser(t, newStore(t)) })
	t.Run("ListLimit", func(t *testing.T) { testListLimit(t, newStore(t)) })
	t.Run("UpdatePartial", func(t *testing.T) { testUpdatePartial(t, newStore(t)) })
	t.Run("CrossUserDenial", func(t *testing.T) { testCrossUserDenial(t, newStore(t)) })
	t.Run("UnauthorizedToggleIsIdempotent", func(t *testing.T) { testUnauthorizedToggle(t, newStore(t)) })
	t.Run("ConcurrentToggle", func(t *testing.T) { testConcurrentToggle(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("EndToEnd", func(t *testing.T) { testEndToEnd(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

func newUser(t require.TestingT, s Store) int64 {
	u, err := s.Create(context.Background(), fmt.Sprintf("user-%d", userSeq.Add(1)), "hash")
	require.NoError(t, err)
	return u.ID
}

func mustCreate(t require.TestingT, s Store, userID int64, title string) *domain.Note {
	n, err := s.CreateNote(context.Background(), domain.NewNote{Title: title, Description: "d-" + title, UserID: userID})
	require.NoError(t, err)
	return n
}

func testCreateThenGet(t *testing.T, s Store) {
	ctx := context.Background()
	owner := newUser(t, s)

	rapid.Check(t, func(rt *rapid.T) {
		title := rapid.StringMatching(`[A-Za-z0-9 ,.!?]{1,255}`).Draw(rt, "title")
		description := rapid.OneOf(rapid.Just(""), rapid.StringMatching(`[A-Za-z0-9 ,.!?\n]{1,500}`)).Draw(rt, "description")

		created, err := s.CreateNote(ctx, domain.NewNote{Title: title, Description: description, UserID: owner})
		require.NoError(rt, err)
		require.Positive(rt, created.ID)
		require.False(rt, created.IsFavorite)
		require.False(rt, created.CreatedAt.IsZero())

		got, err := s.GetNoteByID(ctx, created.ID)
		require.NoError(rt, err)
		require.Equal(rt, created.ID, got.ID)
		require.Equal(rt, owner, got.UserID)
		require.Equal(rt, title, got.Title)
		require.Equal(rt, description, got.Description)
		require.False(rt, got.IsFavorite)
		require.True(rt, created.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", created.CreatedAt, got.CreatedAt)
	})

	_, err := s.GetNoteByID(ctx, 1<<40)
	require.ErrorIs(t, err, domain.ErrNoteNotFound)
}

func testListByUser(t *testing.T, s Store) {
	ctx := context.Background()
	alice, bob, carol := newUser(t, s), newUser(t, s), newUser(t, s)

	var want []int64
	for i := 0; i < 5; i++ {
		want = append([]int64{mustCreate(t, s, alice, fmt.Sprintf("a%d", i)).ID}, want...)
		mustCreate(t, s, bob, fmt.Sprintf("b%d", i))
	}

	got, err := s.ListNotesByUser(ctx, alice, 0)
	require.NoError(t, err)
	ids := make([]int64, 0, len(got))
	for i, n := range got {
		assert.Equal(t, alice, n.UserID)
		if i > 0 {
			assert.False(t, n.CreatedAt.After(got[i-1].CreatedAt), "not ordered newest first")
		}
		ids = append(ids, n.ID)
	}
	assert.Equal(t, want, ids)

	empty, err := s.ListNotesByUser(ctx, carol, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	none, err := s.ListNotesByUser(ctx, 1<<40, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListLimit(t *testing.T, s Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	var last int64
	for i := 0; i < 4; i++ {
		last = mustCreate(t, s, owner, fmt.Sprintf("n%d", i)).ID
	}

	got, err := s.ListNotesByUser(ctx, owner, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, last, got[0].ID)
}

func testUpdatePartial(t *testing.T, s Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	n := mustCreate(t, s, owner, "before")

	title := "after"
	updated, err := s.UpdateNote(ctx, n.ID, owner, domain.NotePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, n.Description, updated.Description)
	assert.Equal(t, owner, updated.UserID)
	assert.True(t, n.CreatedAt.Equal(updated.CreatedAt))

	fav, desc := true, ""
	updated, err = s.UpdateNote(ctx, n.ID, owner, domain.NotePatch{Description: &desc, IsFavorite: &fav})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, "", updated.Description)
	assert.True(t, updated.IsFavorite)

	_, err = s.UpdateNote(ctx, 1<<40, owner, domain.NotePatch{Title: &title})
	require.ErrorIs(t, err, domain.ErrNoteNotFound)
}

func testCrossUserDenial(t *testing.T, s Store) {
	ctx := context.Background()
	owner := newUser(t, s)

	rapid.Check(t, func(rt *rapid.T) {
		n := mustCreate(rt, s, owner, rapid.StringMatching(`[a-z]{1,20}`).Draw(rt, "title"))
		intruder := rapid.Int64Range(1, 1<<40).Filter(func(id int64) bool { return id != owner }).Draw(rt, "intruder")
		newTitle := rapid.StringMatching(`[A-Z]{1,20}`).Draw(rt, "newTitle")
		fav := true

		_, err := s.UpdateNote(ctx, n.ID, intruder, domain.NotePatch{Title: &newTitle, IsFavorite: &fav})
		require.ErrorIs(rt, err, domain.ErrNoteNotFound)

		_, err = s.ToggleFavorite(ctx, n.ID, intruder)
		require.ErrorIs(rt, err, domain.ErrNoteNotFound)

		deleted, err := s.DeleteNote(ctx, n.ID, intruder)
		require.NoError(rt, err)
		require.False(rt, deleted)

		after, err := s.GetNoteByID(ctx, n.ID)
		require.NoError(rt, err)
		require.Equal(rt, n.Title, after.Title)
		require.Equal(rt, n.Description, after.Description)
		require.False(rt, after.IsFavorite)
		require.Equal(rt, owner, after.UserID)
	})
}

func testUnauthorizedToggle(t *testing.T, s Store) {
	ctx := context.Background()
	owner, other := newUser(t, s), newUser(t, s)
	n := mustCreate(t, s, owner, "mine")

	for i := 0; i < 5; i++ {
		_, err := s.ToggleFavorite(ctx, n.ID, other)
		require.ErrorIs(t, err, domain.ErrNoteNotFound)
	}
	after, err := s.GetNoteByID(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, after.IsFavorite)
}

func testConcurrentToggle(t *testing.T, s Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	n := mustCreate(t, s, owner, "race")

	const workers = 2
	const perWorker = 10
	results := make(chan bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				note, err := s.ToggleFavorite(ctx, n.ID, owner)
				if !assert.NoError(t, err) {
					return
				}
				results <- note.IsFavorite
			}
		}()
	}
	wg.Wait()
	close(results)

	var trues, total int
	for v := range results {
		total++
		if v {
			trues++
		}
	}
	require.Equal(t, workers*perWorker, total)
	// Each flip is observed exactly once, so the returned states alternate.
	assert.Equal(t, total/2, trues)

	after, err := s.GetNoteByID(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, after.IsFavorite, "an even number of flips must settle on false")
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	owner := newUser(t, s)
	n := mustCreate(t, s, owner, "doomed")

	deleted, err := s.DeleteNote(ctx, n.ID, owner)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.GetNoteByID(ctx, n.ID)
	require.ErrorIs(t, err, domain.ErrNoteNotFound)

	deleted, err = s.DeleteNote(ctx, n.ID, owner)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.ToggleFavorite(ctx, n.ID, owner)
	require.ErrorIs(t, err, domain.ErrNoteNotFound)
}

func testEndToEnd(t *testing.T, s Store) {
	ctx := context.Background()
	user := newUser(t, s)

	n, err := s.CreateNote(ctx, domain.NewNote{Title: "Groceries", Description: "Milk, eggs", UserID: user})
	require.NoError(t, err)

	list, err := s.ListNotesByUser(ctx, user, 0)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, n.ID, list[0].ID)

	toggled, err := s.ToggleFavorite(ctx, n.ID, user)
	require.NoError(t, err)
	assert.True(t, toggled.IsFavorite)

	got, err := s.GetNoteByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFavorite)

	deleted, err := s.DeleteNote(ctx, n.ID, user)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = s.GetNoteByID(ctx, n.ID)
	require.ErrorIs(t, err, domain.ErrNoteNotFound)
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	u, err := s.Create(ctx, "alice", "hash")
	require.NoError(t, err)
	require.Positive(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byName, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.Equal(t, "hash", byName.PasswordHash)

	byID, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = s.Create(ctx, "alice", "other")
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
	require.Equal(t, errs.FailedPrecondition, errs.CodeOf(err))

	_, err = s.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = s.GetByID(ctx, 1<<40)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
