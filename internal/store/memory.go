package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"blogauth/internal/models"
)

// MemoryStore keeps everything in process memory. Transactions are
// serialized, work on a private copy of the state and publish it on commit.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   memState
	now  func() time.Time
	inTx bool
}

type memState struct {
	nextID     uint
	users      map[uint]models.User
	categories map[uint]models.Category
	articles   map[uint]models.Article
	likes      map[uint]models.Like
}

func (s memState) clone() memState {
	c := memState{
		nextID:     s.nextID,
		users:      make(map[uint]models.User, len(s.users)),
		categories: make(map[uint]models.Category, len(s.categories)),
		articles:   make(map[uint]models.Article, len(s.articles)),
		likes:      make(map[uint]models.Like, len(s.likes)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.articles {
		c.articles[k] = v
	}
	for k, v := range s.likes {
		c.likes[k] = v
	}
	return c
}

// NewMemory returns an empty store seeded with the named categories.
func NewMemory(categories ...string) *MemoryStore {
	s := &MemoryStore{
		st: memState{
			users:      map[uint]models.User{},
			categories: map[uint]models.Category{},
			articles:   map[uint]models.Article{},
			likes:      map[uint]models.Like{},
		},
		now: time.Now,
	}
	for _, name := range categories {
		id := s.id()
		ts := s.now()
		s.st.categories[id] = models.Category{ID: id, Name: name, CreatedAt: ts, UpdatedAt: ts}
	}
	return s
}

// WithClock sets the clock used for CreatedAt and UpdatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) id() uint {
	s.st.nextID++
	return s.st.nextID
}

func (s *MemoryStore) Users() UserStore { return memUsers{s: s} }
func (s *MemoryStore) Blog() BlogStore  { return memBlog{s: s} }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &MemoryStore{st: s.st.clone(), now: s.now, inTx: true}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = tx.st
	s.mu.Unlock()
	return nil
}

// lock guards the state. Outside a transaction it also waits for a running
// one to finish, so a commit never overwrites a concurrent write.
func (s *MemoryStore) lock() func() {
	if !s.inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.Unlock()
		}
	}
}

func (f UserFilter) matches(u *models.User) bool {
	conds := []struct{ set, ok bool }{
		{f.ID != 0, u.ID == f.ID},
		{f.UUID != "", u.UUID == f.UUID},
		{f.Username != "", u.Username == f.Username},
		{f.Email != "", u.Email == f.Email},
		{f.Phone != "", u.Phone == f.Phone},
		{f.PendingToken != "", u.Pending.Token != nil && *u.Pending.Token == f.PendingToken},
	}
	matched := false
	for _, c := range conds {
		if !c.set {
			continue
		}
		if f.Any && c.ok {
			return true
		}
		if !f.Any && !c.ok {
			return false
		}
		matched = true
	}
	return !f.Any || !matched
}

func paginate[T any](items []T, p Page) []T {
	if p.Offset < 0 || p.Offset >= len(items) {
		return []T{}
	}
	items = items[p.Offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

type memUsers struct {
	s *MemoryStore
}

func (r memUsers) sorted(f UserFilter) []models.User {
	var out []models.User
	for _, u := range r.s.st.users {
		if f.matches(&u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memUsers) FindOne(ctx context.Context, f UserFilter) (*models.User, error) {
	if f.IsEmpty() {
		return nil, ErrEmptyFilter
	}
	defer r.s.lock()()

	found := r.sorted(f)
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

func (r memUsers) FindAll(ctx context.Context, f UserFilter, p Page) ([]models.User, int64, error) {
	defer r.s.lock()()

	found := r.sorted(f)
	return paginate(found, p), int64(len(found)), nil
}

// taken reports whether another user already holds one of u's unique values.
func (r memUsers) taken(u *models.User) bool {
	for _, other := range r.s.st.users {
		if other.ID == u.ID {
			continue
		}
		if other.UUID == u.UUID || other.Username == u.Username ||
			other.Email == u.Email || other.Phone == u.Phone {
			return true
		}
		if u.Pending.Token != nil && other.Pending.Token != nil && *u.Pending.Token == *other.Pending.Token {
			return true
		}
	}
	return false
}

func (r memUsers) Create(ctx context.Context, u *models.User) error {
	defer r.s.lock()()

	if r.taken(u) {
		return ErrDuplicate
	}
	u.ID = r.s.id()
	ts := r.s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}
	u.UpdatedAt = ts
	r.s.st.users[u.ID] = *u
	return nil
}

func (r memUsers) Update(ctx context.Context, f UserFilter, ch UserChanges) error {
	if f.IsEmpty() {
		return ErrEmptyFilter
	}
	defer r.s.lock()()

	found := r.sorted(f)
	if len(found) == 0 {
		return ErrNotFound
	}
	for i := range found {
		u := found[i]
		applyChanges(&u, ch)
		if r.taken(&u) {
			return ErrDuplicate
		}
		u.UpdatedAt = r.s.now()
		found[i] = u
	}
	for _, u := range found {
		r.s.st.users[u.ID] = u
	}
	return nil
}

func applyChanges(u *models.User, ch UserChanges) {
	if ch.Username != nil {
		u.Username = *ch.Username
	}
	if ch.Email != nil {
		u.Email = *ch.Email
	}
	if ch.Phone != nil {
		u.Phone = *ch.Phone
	}
	if ch.Password != nil {
		u.Password = *ch.Password
	}
	if ch.ImgProfile != nil {
		img := *ch.ImgProfile
		u.ImgProfile = &img
	}
	if ch.Verified != nil {
		u.Verified = *ch.Verified
	}
	switch {
	case ch.OTP != nil:
		code, ctx, exp := ch.OTP.Code, ch.OTP.Context, ch.OTP.ExpiresAt
		u.OTP, u.OTPContext, u.OTPExpiresAt = &code, &ctx, &exp
	case ch.ClearOTP:
		u.OTP, u.OTPContext, u.OTPExpiresAt = nil, nil, nil
	}
	switch {
	case ch.Pending != nil:
		p := *ch.Pending
		u.Pending = models.PendingChange{Field: &p.Field, Value: &p.Value, Token: &p.Token, ExpiresAt: &p.ExpiresAt}
	case ch.ClearPending:
		u.Pending = models.PendingChange{}
	}
}

func (r memUsers) Destroy(ctx context.Context, f UserFilter) (int64, error) {
	if f.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	defer r.s.lock()()

	var n int64
	for id, u := range r.s.st.users {
		if f.matches(&u) {
			delete(r.s.st.users, id)
			n++
		}
	}
	return n, nil
}

type memBlog struct {
	s *MemoryStore
}

func (r memBlog) Categories(ctx context.Context) ([]models.Category, error) {
	defer r.s.lock()()

	cats := make([]models.Category, 0, len(r.s.st.categories))
	for _, c := range r.s.st.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	return cats, nil
}

func (r memBlog) FindCategory(ctx context.Context, id uint) (*models.Category, error) {
	defer r.s.lock()()

	c, ok := r.s.st.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (f ArticleFilter) matches(a *models.Article) bool {
	switch {
	case f.ID != 0 && a.ID != f.ID:
		return false
	case f.Title != "" && a.Title != f.Title:
		return false
	case f.CategoryID != 0 && a.CategoryID != f.CategoryID:
		return false
	case f.UserID != 0 && a.UserID != f.UserID:
		return false
	case !f.WithDeleted && a.IsDeleted:
		return false
	}
	return true
}

// views joins matching articles with their author and category. Articles
// whose author or category is gone are dropped, like an inner join.
func (r memBlog) views(f ArticleFilter) []models.ArticleView {
	var out []models.ArticleView
	for _, a := range r.s.st.articles {
		if !f.matches(&a) {
			continue
		}
		author, ok := r.s.st.users[a.UserID]
		if !ok {
			continue
		}
		cat, ok := r.s.st.categories[a.CategoryID]
		if !ok {
			continue
		}
		out = append(out, models.ArticleView{
			Article:      a,
			Author:       author.Username,
			AuthorImg:    author.ImgProfile,
			CategoryName: cat.Name,
		})
	}
	return out
}

func (r memBlog) FindArticle(ctx context.Context, f ArticleFilter) (*models.Article, error) {
	defer r.s.lock()()

	var found *models.Article
	for _, a := range r.s.st.articles {
		if f.matches(&a) && (found == nil || a.ID < found.ID) {
			a := a
			found = &a
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r memBlog) ListArticles(ctx context.Context, f ArticleFilter, p Page, oldestFirst bool) ([]models.ArticleView, int64, error) {
	defer r.s.lock()()

	all := r.views(f)
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].Article, all[j].Article
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if oldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if oldestFirst {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return paginate(all, p), int64(len(all)), nil
}

func (r memBlog) MostLiked(ctx context.Context, limit int) ([]models.ArticleView, error) {
	defer r.s.lock()()

	all := r.views(ArticleFilter{})
	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalLike != all[j].TotalLike {
			return all[i].TotalLike > all[j].TotalLike
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, Page{Limit: limit}), nil
}

func (r memBlog) CreateArticle(ctx context.Context, a *models.Article) error {
	defer r.s.lock()()

	for _, other := range r.s.st.articles {
		if other.Title == a.Title {
			return ErrDuplicate
		}
	}
	a.ID = r.s.id()
	ts := r.s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = ts
	}
	a.UpdatedAt = ts
	r.s.st.articles[a.ID] = *a
	return nil
}

func (r memBlog) SoftDeleteArticle(ctx context.Context, id uint) error {
	defer r.s.lock()()

	a, ok := r.s.st.articles[id]
	if !ok || a.IsDeleted {
		return ErrNotFound
	}
	a.IsDeleted = true
	a.UpdatedAt = r.s.now()
	r.s.st.articles[id] = a
	return nil
}

func (r memBlog) IncrementLikes(ctx context.Context, articleID uint) error {
	defer r.s.lock()()

	a, ok := r.s.st.articles[articleID]
	if !ok {
		return ErrNotFound
	}
	a.TotalLike++
	r.s.st.articles[articleID] = a
	return nil
}

func (r memBlog) FindLike(ctx context.Context, userID, articleID uint) (*models.Like, error) {
	defer r.s.lock()()

	for _, l := range r.s.st.likes {
		if l.UserID == userID && l.ArticleID == articleID {
			l := l
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (r memBlog) CreateLike(ctx context.Context, l *models.Like) error {
	defer r.s.lock()()

	for _, other := range r.s.st.likes {
		if other.UserID == l.UserID && other.ArticleID == l.ArticleID {
			return ErrDuplicate
		}
	}
	l.ID = r.s.id()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.s.now()
	}
	r.s.st.likes[l.ID] = *l
	return nil
}

func (r memBlog) LikedBy(ctx context.Context, userID uint, p Page) ([]models.ArticleView, int64, error) {
	defer r.s.lock()()

	likeID := map[uint]uint{}
	for _, l := range r.s.st.likes {
		if l.UserID == userID {
			likeID[l.ArticleID] = l.ID
		}
	}
	var liked []models.ArticleView
	for _, v := range r.views(ArticleFilter{}) {
		if _, ok := likeID[v.ID]; ok {
			liked = append(liked, v)
		}
	}
	sort.Slice(liked, func(i, j int) bool { return likeID[liked[i].ID] > likeID[liked[j].ID] })
	return paginate(liked, p), int64(len(liked)), nil
}
