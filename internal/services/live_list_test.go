package services

import (
	"context"
	"testing"
	"time"

	"github.com/deedox/platform/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(rows []models.Course) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Title
	}
	return out
}

func TestLiveList_MergesChanges(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feed := NewChangeFeed()
	content := NewContent(db, feed)

	algebra := &models.Course{Title: "Algebra", IsPublished: true}
	require.NoError(t, content.Courses.Create(ctx, algebra))

	live := NewLiveList(content.Courses, map[string]interface{}{"is_published": true},
		func(c *models.Course) bool { return c.IsPublished })
	require.NoError(t, live.Load(ctx))
	stop := live.Watch(feed, "public-courses")
	defer stop()

	require.NoError(t, content.Courses.Create(ctx, &models.Course{Title: "Biology", IsPublished: true}))
	require.NoError(t, content.Courses.Create(ctx, &models.Course{Title: "Draft"}))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Biology", "Algebra"}, titles(live.Items()))
	}, time.Second, 10*time.Millisecond)

	_, err := content.Courses.Update(ctx, algebra.ID, map[string]interface{}{"title": "Algebra I"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Biology", "Algebra I"}, titles(live.Items()))
	}, time.Second, 10*time.Millisecond)

	// unpublishing drops the row
	_, err = content.Courses.Toggle(ctx, algebra.ID, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Biology"}, titles(live.Items()))
	}, time.Second, 10*time.Millisecond)

	// republishing refetches, restoring creation order
	_, err = content.Courses.Toggle(ctx, algebra.ID, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Biology", "Algebra I"}, titles(live.Items()))
	}, time.Second, 10*time.Millisecond)
}

func TestLiveList_ApplyDeleteAndMissingRecord(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	content := NewContent(db, nil)
	require.NoError(t, content.News.Create(ctx, &models.NewsItem{Title: "Launch"}))

	live := NewLiveList(content.News, nil, nil)
	require.NoError(t, live.Load(ctx))
	id := rowKey(live.Items()[0].ID)

	assert.False(t, live.apply(ChangeEvent{Table: "news_items", Type: ChangeUpdate, RowID: id}))
	assert.True(t, live.apply(ChangeEvent{Table: "news_items", Type: ChangeDelete, RowID: id}))
	assert.Empty(t, live.Items())
	assert.True(t, live.apply(ChangeEvent{Table: "news_items", Type: ChangeDelete, RowID: "42"}))
}
