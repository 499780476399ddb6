package interactions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"clipstream/internal/apperr"
	"clipstream/internal/collections"
	"clipstream/internal/comments"
	"clipstream/internal/likes"
	"clipstream/internal/posts"
	"clipstream/internal/users"
)

// fakeStore is an in-memory stand-in for every repository the engine
// touches. Counter failures can be injected to exercise the
// PartialFailure paths.
type fakeStore struct {
	mu sync.Mutex

	posts       map[uuid.UUID]*posts.Post
	comments    map[uuid.UUID]*comments.Comment
	collections map[uuid.UUID]*collections.Collection
	users       map[uuid.UUID]*users.User
	likeEdges   map[string]bool
	followEdges map[string]bool

	readyMedia map[uuid.UUID]uuid.UUID // media id -> owner

	failLikeCounter    bool
	failCommentCounter bool
	failItemCounter    bool
	failFollowCounter  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:       make(map[uuid.UUID]*posts.Post),
		comments:    make(map[uuid.UUID]*comments.Comment),
		collections: make(map[uuid.UUID]*collections.Collection),
		users:       make(map[uuid.UUID]*users.User),
		likeEdges:   make(map[string]bool),
		followEdges: make(map[string]bool),
		readyMedia:  make(map[uuid.UUID]uuid.UUID),
	}
}

func likeKey(kind likes.TargetKind, targetID, userID uuid.UUID) string {
	return fmt.Sprintf("%s|%s|%s", kind, targetID, userID)
}

func followKey(followerID, followeeID uuid.UUID) string {
	return fmt.Sprintf("%s|%s", followerID, followeeID)
}

// --- PostStore ---

func (f *fakeStore) Create(ctx context.Context, p *posts.Post) (*posts.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.posts[p.PostID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) GetByID(ctx context.Context, postID uuid.UUID) (*posts.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "post not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) Delete(ctx context.Context, postID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[postID]; !ok {
		return apperr.New(apperr.KindNotFound, "post not found")
	}
	delete(f.posts, postID)
	for id, c := range f.comments {
		if c.PostID == postID {
			delete(f.comments, id)
		}
	}
	return nil
}

func (f *fakeStore) SetCollection(ctx context.Context, postID uuid.UUID, collectionID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "post not found")
	}
	p.CollectionID = collectionID
	return nil
}

func (f *fakeStore) AdjustLikeCount(ctx context.Context, postID uuid.UUID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLikeCounter {
		return apperr.New(apperr.KindUnavailable, "injected counter failure")
	}
	p, ok := f.posts[postID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "post not found")
	}
	p.LikeCount = max(p.LikeCount+delta, 0)
	return nil
}

func (f *fakeStore) AdjustCommentCount(ctx context.Context, postID uuid.UUID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommentCounter {
		return apperr.New(apperr.KindUnavailable, "injected counter failure")
	}
	p, ok := f.posts[postID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "post not found")
	}
	p.CommentCount = max(p.CommentCount+delta, 0)
	return nil
}

// --- CommentStore ---

type fakeCommentStore struct{ *fakeStore }

func (f fakeCommentStore) Create(ctx context.Context, c *comments.Comment) (*comments.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.comments[c.CommentID] = &cp
	out := cp
	return &out, nil
}

func (f fakeCommentStore) GetByID(ctx context.Context, commentID uuid.UUID) (*comments.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[commentID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "comment not found")
	}
	cp := *c
	return &cp, nil
}

func (f fakeCommentStore) Delete(ctx context.Context, commentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[commentID]; !ok {
		return apperr.New(apperr.KindNotFound, "comment not found")
	}
	delete(f.comments, commentID)
	return nil
}

func (f fakeCommentStore) AdjustLikeCount(ctx context.Context, commentID uuid.UUID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLikeCounter {
		return apperr.New(apperr.KindUnavailable, "injected counter failure")
	}
	c, ok := f.comments[commentID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "comment not found")
	}
	c.LikeCount = max(c.LikeCount+delta, 0)
	return nil
}

// --- CollectionStore ---

type fakeCollectionStore struct{ *fakeStore }

func (f fakeCollectionStore) Create(ctx context.Context, ownerID uuid.UUID, req collections.CreateCollectionRequest) (*collections.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.collections {
		if c.OwnerID == ownerID && strings.EqualFold(c.Title, req.Title) {
			return nil, apperr.Newf(apperr.KindConflict, "collection %q already exists", req.Title)
		}
	}
	c := &collections.Collection{
		CollectionID: uuid.New(),
		OwnerID:      ownerID,
		Title:        req.Title,
		Description:  req.Description,
	}
	f.collections[c.CollectionID] = c
	cp := *c
	return &cp, nil
}

func (f fakeCollectionStore) GetByID(ctx context.Context, collectionID uuid.UUID) (*collections.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[collectionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "collection not found")
	}
	cp := *c
	return &cp, nil
}

func (f fakeCollectionStore) EnsureByTitle(ctx context.Context, ownerID uuid.UUID, title string) (*collections.Collection, error) {
	f.mu.Lock()
	for _, c := range f.collections {
		if c.OwnerID == ownerID && strings.EqualFold(c.Title, title) {
			cp := *c
			f.mu.Unlock()
			return &cp, nil
		}
	}
	f.mu.Unlock()
	return f.Create(ctx, ownerID, collections.CreateCollectionRequest{Title: title})
}

func (f fakeCollectionStore) AdjustItemCount(ctx context.Context, collectionID uuid.UUID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failItemCounter {
		return apperr.New(apperr.KindUnavailable, "injected counter failure")
	}
	c, ok := f.collections[collectionID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "collection not found")
	}
	c.ItemCount = max(c.ItemCount+delta, 0)
	return nil
}

// --- LikeStore ---

type fakeLikeStore struct{ *fakeStore }

func (f fakeLikeStore) Insert(ctx context.Context, kind likes.TargetKind, targetID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := likeKey(kind, targetID, userID)
	if f.likeEdges[k] {
		return false, nil
	}
	f.likeEdges[k] = true
	return true, nil
}

func (f fakeLikeStore) Delete(ctx context.Context, kind likes.TargetKind, targetID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := likeKey(kind, targetID, userID)
	if !f.likeEdges[k] {
		return false, nil
	}
	delete(f.likeEdges, k)
	return true, nil
}

func (f fakeLikeStore) DeleteAllForTarget(ctx context.Context, kind likes.TargetKind, targetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := fmt.Sprintf("%s|%s|", kind, targetID)
	for k := range f.likeEdges {
		if strings.HasPrefix(k, prefix) {
			delete(f.likeEdges, k)
		}
	}
	return nil
}

func (f fakeLikeStore) DeleteAllForPostComments(ctx context.Context, postID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.comments {
		if c.PostID != postID {
			continue
		}
		prefix := fmt.Sprintf("%s|%s|", likes.TargetComment, id)
		for k := range f.likeEdges {
			if strings.HasPrefix(k, prefix) {
				delete(f.likeEdges, k)
			}
		}
	}
	return nil
}

// --- FollowStore ---

type fakeFollowStore struct{ *fakeStore }

func (f fakeFollowStore) Insert(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := followKey(followerID, followeeID)
	if f.followEdges[k] {
		return false, nil
	}
	f.followEdges[k] = true
	return true, nil
}

func (f fakeFollowStore) Delete(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := followKey(followerID, followeeID)
	if !f.followEdges[k] {
		return false, nil
	}
	delete(f.followEdges, k)
	return true, nil
}

// --- UserStore ---

type fakeUserStore struct{ *fakeStore }

func (f fakeUserStore) GetByID(ctx context.Context, userID uuid.UUID) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (f fakeUserStore) AdjustFollowerCount(ctx context.Context, userID uuid.UUID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFollowCounter {
		return apperr.New(apperr.KindUnavailable, "injected counter failure")
	}
	u, ok := f.users[userID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	u.FollowerCount = max(u.FollowerCount+delta, 0)
	return nil
}

func (f fakeUserStore) AdjustFollowingCount(ctx context.Context, userID uuid.UUID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFollowCounter {
		return apperr.New(apperr.KindUnavailable, "injected counter failure")
	}
	u, ok := f.users[userID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	u.FollowingCount = max(u.FollowingCount+delta, 0)
	return nil
}

// --- MediaStore ---

type fakeMediaStore struct{ *fakeStore }

func (f fakeMediaStore) VerifyReady(ctx context.Context, mediaID, ownerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.readyMedia[mediaID]
	if !ok {
		return apperr.New(apperr.KindUploadIncomplete, "media upload has not completed")
	}
	if owner != ownerID {
		return apperr.New(apperr.KindForbidden, "media belongs to another user")
	}
	return nil
}

// --- Publisher ---

type recordedEvent struct {
	resource  string
	eventType string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(resource, eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{resource: resource, eventType: eventType})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// --- Dedupe ---

type fakeDedupe struct {
	mu   sync.Mutex
	vals map[string][]byte
	done map[string]bool
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{vals: make(map[string][]byte), done: make(map[string]bool)}
}

func (d *fakeDedupe) Begin(ctx context.Context, key string) (bool, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.done[key] {
		if _, claimed := d.vals[key]; claimed {
			return false, nil, apperr.New(apperr.KindConflict, "operation already in flight")
		}
		d.vals[key] = nil
		return true, nil, nil
	}
	return false, d.vals[key], nil
}

func (d *fakeDedupe) Complete(ctx context.Context, key string, result []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vals[key] = result
	d.done[key] = true
	return nil
}

func (d *fakeDedupe) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.vals, key)
	delete(d.done, key)
	return nil
}

// --- helpers ---

type testEnv struct {
	store  *fakeStore
	pub    *recordingPublisher
	dedupe *fakeDedupe
	engine *Engine
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	pub := &recordingPublisher{}
	dedupe := newFakeDedupe()
	logger := slog.New(slog.DiscardHandler)

	engine := NewEngine(
		store,
		fakeCommentStore{store},
		fakeCollectionStore{store},
		fakeLikeStore{store},
		fakeFollowStore{store},
		fakeUserStore{store},
		fakeMediaStore{store},
		pub,
		dedupe,
		logger,
	)
	return &testEnv{store: store, pub: pub, dedupe: dedupe, engine: engine}
}

func (e *testEnv) addUser() uuid.UUID {
	id := uuid.New()
	e.store.users[id] = &users.User{UserID: id, Handle: "u-" + id.String()[:8]}
	return id
}

func (e *testEnv) addPost(ownerID uuid.UUID) uuid.UUID {
	id := uuid.New()
	e.store.posts[id] = &posts.Post{PostID: id, OwnerID: ownerID, Title: "post"}
	return id
}

func (e *testEnv) addReadyMedia(ownerID uuid.UUID) uuid.UUID {
	id := uuid.New()
	e.store.readyMedia[id] = ownerID
	return id
}

func (e *testEnv) postLikeCount(postID uuid.UUID) int64 {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.posts[postID].LikeCount
}

// --- tests ---

func TestToggleLikeTwiceRestoresState(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	liker := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	first, err := env.engine.ToggleLike(ctx, likes.TargetPost, postID, liker, "")
	if err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	if !first.Liked || first.LikeCount != 1 {
		t.Fatalf("expected liked=true count=1, got liked=%v count=%d", first.Liked, first.LikeCount)
	}

	second, err := env.engine.ToggleLike(ctx, likes.TargetPost, postID, liker, "")
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if second.Liked || second.LikeCount != 0 {
		t.Fatalf("expected liked=false count=0, got liked=%v count=%d", second.Liked, second.LikeCount)
	}

	if env.store.likeEdges[likeKey(likes.TargetPost, postID, liker)] {
		t.Error("like edge should be gone after the second toggle")
	}
}

func TestToggleLikeConcurrentDistinctUsers(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		liker := env.addUser()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.engine.ToggleLike(ctx, likes.TargetPost, postID, liker, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent toggle failed: %v", err)
	}

	if got := env.postLikeCount(postID); got != n {
		t.Errorf("expected like count %d, got %d", n, got)
	}

	env.store.mu.Lock()
	edges := len(env.store.likeEdges)
	env.store.mu.Unlock()
	if edges != n {
		t.Errorf("expected %d like edges, got %d", n, edges)
	}
}

func TestToggleLikeMissingTarget(t *testing.T) {
	env := newTestEnv()
	liker := env.addUser()

	_, err := env.engine.ToggleLike(context.Background(), likes.TargetPost, uuid.New(), liker, "")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestToggleLikeInvalidKind(t *testing.T) {
	env := newTestEnv()

	_, err := env.engine.ToggleLike(context.Background(), likes.TargetKind("story"), uuid.New(), uuid.New(), "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestToggleLikePartialFailureKeepsEdge(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	liker := env.addUser()
	postID := env.addPost(owner)
	env.store.failLikeCounter = true

	_, err := env.engine.ToggleLike(context.Background(), likes.TargetPost, postID, liker, "")
	if !apperr.IsKind(err, apperr.KindPartialFailure) {
		t.Fatalf("expected PartialFailure, got %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if !env.store.likeEdges[likeKey(likes.TargetPost, postID, liker)] {
		t.Error("edge must survive the counter failure; it is the authoritative state")
	}
}

func TestToggleLikeIdempotentReplay(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	liker := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	first, err := env.engine.ToggleLike(ctx, likes.TargetPost, postID, liker, "key-1")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}

	// Replaying the same key must not flip the edge again.
	replay, err := env.engine.ToggleLike(ctx, likes.TargetPost, postID, liker, "key-1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.Liked != first.Liked || replay.LikeCount != first.LikeCount {
		t.Errorf("replay returned %+v, want %+v", replay, first)
	}
	if got := env.postLikeCount(postID); got != 1 {
		t.Errorf("replay applied a second effect: count=%d", got)
	}
}

func TestAddCommentValidation(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	if _, err := env.engine.AddComment(ctx, postID, owner, "   ", ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("blank body: expected ValidationError, got %v", err)
	}

	long := strings.Repeat("x", comments.MaxBodyLength+1)
	if _, err := env.engine.AddComment(ctx, postID, owner, long, ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("oversized body: expected ValidationError, got %v", err)
	}
}

func TestAddCommentIncrementsCounter(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	commenter := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	c, err := env.engine.AddComment(ctx, postID, commenter, "nice clip", "")
	if err != nil {
		t.Fatalf("add comment failed: %v", err)
	}
	if c.Body != "nice clip" || c.PostID != postID || c.AuthorID != commenter {
		t.Errorf("unexpected comment: %+v", c)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if got := env.store.posts[postID].CommentCount; got != 1 {
		t.Errorf("expected comment count 1, got %d", got)
	}
}

func TestAddCommentPartialFailureReturnsComment(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	postID := env.addPost(owner)
	env.store.failCommentCounter = true

	c, err := env.engine.AddComment(context.Background(), postID, owner, "still here", "")
	if !apperr.IsKind(err, apperr.KindPartialFailure) {
		t.Fatalf("expected PartialFailure, got %v", err)
	}
	if c == nil {
		t.Fatal("the created comment must be returned alongside PartialFailure")
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if _, ok := env.store.comments[c.CommentID]; !ok {
		t.Error("comment must stay visible; reconciliation corrects the counter")
	}
}

func TestDeleteCommentForbidden(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	author := env.addUser()
	stranger := env.addUser()
	postID := env.addPost(owner)

	c, err := env.engine.AddComment(context.Background(), postID, author, "mine", "")
	if err != nil {
		t.Fatalf("add comment failed: %v", err)
	}

	err = env.engine.DeleteComment(context.Background(), c.CommentID, stranger)
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestDeleteCommentDecrementsCounter(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	author := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	c, err := env.engine.AddComment(ctx, postID, author, "fleeting", "")
	if err != nil {
		t.Fatalf("add comment failed: %v", err)
	}
	if err := env.engine.DeleteComment(ctx, c.CommentID, author); err != nil {
		t.Fatalf("delete comment failed: %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if got := env.store.posts[postID].CommentCount; got != 0 {
		t.Errorf("expected comment count 0, got %d", got)
	}
	if _, ok := env.store.comments[c.CommentID]; ok {
		t.Error("comment should be gone")
	}
}

func TestCreatePostRequiresReadyMedia(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()

	_, err := env.engine.CreatePost(context.Background(), CreatePostRequest{
		OwnerID: owner,
		MediaID: uuid.New(),
		Title:   "no media",
	})
	if !apperr.IsKind(err, apperr.KindUploadIncomplete) {
		t.Fatalf("expected UploadIncomplete, got %v", err)
	}
}

func TestCreatePostImplicitCollection(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	mediaID := env.addReadyMedia(owner)
	ctx := context.Background()

	p, err := env.engine.CreatePost(ctx, CreatePostRequest{
		OwnerID:         owner,
		MediaID:         mediaID,
		Title:           "first",
		CollectionTitle: "Travel",
	})
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	if p.CollectionID == nil {
		t.Fatal("post should reference the implicitly created collection")
	}

	env.store.mu.Lock()
	col := env.store.collections[*p.CollectionID]
	env.store.mu.Unlock()
	if col == nil || col.Title != "Travel" {
		t.Fatalf("expected collection Travel, got %+v", col)
	}
	if col.ItemCount != 1 {
		t.Errorf("expected item count 1, got %d", col.ItemCount)
	}

	// Second post naming the same title reuses the collection.
	media2 := env.addReadyMedia(owner)
	p2, err := env.engine.CreatePost(ctx, CreatePostRequest{
		OwnerID:         owner,
		MediaID:         media2,
		Title:           "second",
		CollectionTitle: "Travel",
	})
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if *p2.CollectionID != *p.CollectionID {
		t.Error("same title should resolve to the same collection")
	}
}

func TestCreatePostForeignCollection(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	other := env.addUser()
	mediaID := env.addReadyMedia(owner)
	ctx := context.Background()

	col, err := fakeCollectionStore{env.store}.Create(ctx, other, collections.CreateCollectionRequest{Title: "theirs"})
	if err != nil {
		t.Fatalf("seed collection failed: %v", err)
	}

	_, err = env.engine.CreatePost(ctx, CreatePostRequest{
		OwnerID:      owner,
		MediaID:      mediaID,
		Title:        "sneaky",
		CollectionID: &col.CollectionID,
	})
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestDeletePostOwnerOnly(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	stranger := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	if err := env.engine.DeletePost(ctx, postID, stranger); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if err := env.engine.DeletePost(ctx, postID, owner); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if _, ok := env.store.posts[postID]; ok {
		t.Error("post should be gone")
	}
}

func TestDeletePostClearsLikeEdges(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	liker := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	if _, err := env.engine.ToggleLike(ctx, likes.TargetPost, postID, liker, ""); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	c, err := env.engine.AddComment(ctx, postID, liker, "soon gone", "")
	if err != nil {
		t.Fatalf("add comment failed: %v", err)
	}
	if _, err := env.engine.ToggleLike(ctx, likes.TargetComment, c.CommentID, owner, ""); err != nil {
		t.Fatalf("comment like failed: %v", err)
	}

	if err := env.engine.DeletePost(ctx, postID, owner); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if len(env.store.likeEdges) != 0 {
		t.Errorf("expected no like edges after delete, got %d", len(env.store.likeEdges))
	}
}

func TestAssignToCollectionMovesCounters(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	mediaID := env.addReadyMedia(owner)
	ctx := context.Background()

	p, err := env.engine.CreatePost(ctx, CreatePostRequest{
		OwnerID:         owner,
		MediaID:         mediaID,
		Title:           "mover",
		CollectionTitle: "From",
	})
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	from := *p.CollectionID

	to, err := fakeCollectionStore{env.store}.Create(ctx, owner, collections.CreateCollectionRequest{Title: "To"})
	if err != nil {
		t.Fatalf("seed collection failed: %v", err)
	}

	moved, err := env.engine.AssignToCollection(ctx, p.PostID, &to.CollectionID, owner)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if moved.CollectionID == nil || *moved.CollectionID != to.CollectionID {
		t.Fatalf("post not moved: %+v", moved.CollectionID)
	}

	env.store.mu.Lock()
	fromCount := env.store.collections[from].ItemCount
	toCount := env.store.collections[to.CollectionID].ItemCount
	env.store.mu.Unlock()
	if fromCount != 0 || toCount != 1 {
		t.Errorf("expected counts from=0 to=1, got from=%d to=%d", fromCount, toCount)
	}

	// Detach entirely.
	detached, err := env.engine.AssignToCollection(ctx, p.PostID, nil, owner)
	if err != nil {
		t.Fatalf("detach failed: %v", err)
	}
	if detached.CollectionID != nil {
		t.Error("post should have no collection after detach")
	}
}

func TestAssignToCollectionNoOp(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	mediaID := env.addReadyMedia(owner)
	ctx := context.Background()

	p, err := env.engine.CreatePost(ctx, CreatePostRequest{
		OwnerID:         owner,
		MediaID:         mediaID,
		Title:           "steady",
		CollectionTitle: "Keep",
	})
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}

	same, err := env.engine.AssignToCollection(ctx, p.PostID, p.CollectionID, owner)
	if err != nil {
		t.Fatalf("no-op assign failed: %v", err)
	}
	if *same.CollectionID != *p.CollectionID {
		t.Error("no-op assign changed the collection")
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if got := env.store.collections[*p.CollectionID].ItemCount; got != 1 {
		t.Errorf("no-op assign moved the counter: %d", got)
	}
}

func TestFollowAdjustsBothCounters(t *testing.T) {
	env := newTestEnv()
	follower := env.addUser()
	followee := env.addUser()
	ctx := context.Background()

	res, err := env.engine.Follow(ctx, follower, followee)
	if err != nil {
		t.Fatalf("follow failed: %v", err)
	}
	if !res.Following {
		t.Error("expected following=true")
	}

	env.store.mu.Lock()
	fr := env.store.users[followee].FollowerCount
	fg := env.store.users[follower].FollowingCount
	env.store.mu.Unlock()
	if fr != 1 || fg != 1 {
		t.Fatalf("expected follower=1 following=1, got %d/%d", fr, fg)
	}

	// Duplicate follow is a no-op.
	if _, err := env.engine.Follow(ctx, follower, followee); err != nil {
		t.Fatalf("duplicate follow failed: %v", err)
	}
	env.store.mu.Lock()
	fr = env.store.users[followee].FollowerCount
	env.store.mu.Unlock()
	if fr != 1 {
		t.Errorf("duplicate follow moved the counter: %d", fr)
	}

	if _, err := env.engine.Unfollow(ctx, follower, followee); err != nil {
		t.Fatalf("unfollow failed: %v", err)
	}
	env.store.mu.Lock()
	fr = env.store.users[followee].FollowerCount
	fg = env.store.users[follower].FollowingCount
	env.store.mu.Unlock()
	if fr != 0 || fg != 0 {
		t.Errorf("expected counters back to 0, got %d/%d", fr, fg)
	}
}

func TestFollowSelf(t *testing.T) {
	env := newTestEnv()
	u := env.addUser()

	_, err := env.engine.Follow(context.Background(), u, u)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestFollowMissingFollowee(t *testing.T) {
	env := newTestEnv()
	follower := env.addUser()

	_, err := env.engine.Follow(context.Background(), follower, uuid.New())
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	env := newTestEnv()
	owner := env.addUser()
	liker := env.addUser()
	postID := env.addPost(owner)
	ctx := context.Background()

	if _, err := env.engine.ToggleLike(ctx, likes.TargetPost, postID, liker, ""); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if _, err := env.engine.AddComment(ctx, postID, liker, "hi", ""); err != nil {
		t.Fatalf("comment failed: %v", err)
	}
	if env.pub.count() == 0 {
		t.Error("mutations should publish notifier events")
	}
}

func TestFailedOperationReleasesIdempotencyKey(t *testing.T) {
	env := newTestEnv()
	liker := env.addUser()
	ctx := context.Background()
	missing := uuid.New()

	_, err := env.engine.ToggleLike(ctx, likes.TargetPost, missing, liker, "retry-key")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	// The key must be retryable: seed the post and try again.
	owner := env.addUser()
	env.store.mu.Lock()
	env.store.posts[missing] = &posts.Post{PostID: missing, OwnerID: owner}
	env.store.mu.Unlock()

	res, err := env.engine.ToggleLike(ctx, likes.TargetPost, missing, liker, "retry-key")
	if err != nil {
		t.Fatalf("retry with released key failed: %v", err)
	}
	if !res.Liked {
		t.Error("retried toggle should have created the edge")
	}
}
