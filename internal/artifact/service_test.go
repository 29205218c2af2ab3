package artifact

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/ideaforge/internal/model"
	"github.com/hitoshi/ideaforge/internal/repository"
)

// --- モック定義 ---

// memArtifactRepo はArtifactRepositoryのインメモリ実装。
type memArtifactRepo struct {
	mu          sync.Mutex
	nextID      int64
	artifacts   map[int64]*model.Artifact
	reassignErr error
}

func newMemArtifactRepo() *memArtifactRepo {
	return &memArtifactRepo{artifacts: make(map[int64]*model.Artifact)}
}

func (r *memArtifactRepo) Create(ctx context.Context, a *model.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	copied := *a
	r.artifacts[a.ID] = &copied
	return nil
}

func (r *memArtifactRepo) FindByID(ctx context.Context, id int64) (*model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (r *memArtifactRepo) list(match func(a *model.Artifact) bool) []*model.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Artifact
	for _, a := range r.artifacts {
		if match(a) {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *memArtifactRepo) ListByAccountID(ctx context.Context, accountID int64) ([]*model.Artifact, error) {
	return r.list(func(a *model.Artifact) bool { return a.AccountID != nil && *a.AccountID == accountID }), nil
}

func (r *memArtifactRepo) ListByGuestToken(ctx context.Context, guestToken string) ([]*model.Artifact, error) {
	return r.list(func(a *model.Artifact) bool { return a.GuestSessionToken != nil && *a.GuestSessionToken == guestToken }), nil
}

func (r *memArtifactRepo) CountByAccountID(ctx context.Context, accountID int64) (int, error) {
	list, _ := r.ListByAccountID(ctx, accountID)
	return len(list), nil
}

func (r *memArtifactRepo) CountByGuestToken(ctx context.Context, guestToken string) (int, error) {
	list, _ := r.ListByGuestToken(ctx, guestToken)
	return len(list), nil
}

func (r *memArtifactRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[id]; !ok {
		return false, nil
	}
	delete(r.artifacts, id)
	return true, nil
}

func (r *memArtifactRepo) ReassignGuestToAccount(ctx context.Context, guestToken string, accountID int64) (int64, error) {
	if r.reassignErr != nil {
		return 0, r.reassignErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.artifacts {
		if a.GuestSessionToken != nil && *a.GuestSessionToken == guestToken {
			id := accountID
			a.AccountID = &id
			a.GuestSessionToken = nil
			n++
		}
	}
	return n, nil
}

func (r *memArtifactRepo) DeleteGuestCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.artifacts {
		if a.AccountID == nil && a.GuestSessionToken != nil && a.CreatedAt.Before(cutoff) {
			delete(r.artifacts, id)
			n++
		}
	}
	return n, nil
}

var _ repository.ArtifactRepository = (*memArtifactRepo)(nil)

func seedGuest(t *testing.T, repo *memArtifactRepo, token, title string) *model.Artifact {
	t.Helper()
	tok := token
	a := &model.Artifact{Title: title, GuestSessionToken: &tok, Purpose: model.GeneratedPurposeMarker}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return a
}

func seedAccount(t *testing.T, repo *memArtifactRepo, accountID int64, title string) *model.Artifact {
	t.Helper()
	id := accountID
	a := &model.Artifact{Title: title, AccountID: &id, Purpose: model.GeneratedPurposeMarker}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return a
}

func principalFor(id int64, role model.Role) *model.Principal {
	return model.NewPrincipal(&model.Account{ID: id, Role: role})
}

func newTestService(repo *memArtifactRepo) *Service {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewService(repo, NewReconciler(repo, logger))
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Fatalf("code = %s, want %s", apiErr.Code, code)
	}
}

func int64Ptr(v int64) *int64 { return &v }

// --- テスト ---

func TestReconcile_TwiceIsIdempotent(t *testing.T) {
	repo := newMemArtifactRepo()
	seedGuest(t, repo, "g-1", "a")
	seedGuest(t, repo, "g-1", "b")
	seedGuest(t, repo, "g-2", "other")
	svc := newTestService(repo)

	n, err := svc.reconciler.Reconcile(context.Background(), "g-1", 10)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if n != 2 {
		t.Errorf("first reconcile = %d, want 2", n)
	}

	n, err = svc.reconciler.Reconcile(context.Background(), "g-1", 10)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if n != 0 {
		t.Errorf("second reconcile = %d, want 0", n)
	}

	if left, _ := repo.CountByGuestToken(context.Background(), "g-1"); left != 0 {
		t.Errorf("artifacts with guest token left = %d, want 0", left)
	}
	owned, _ := repo.ListByAccountID(context.Background(), 10)
	for _, a := range owned {
		if a.Purpose != model.GeneratedPurposeMarker {
			t.Errorf("Purpose changed to %q", a.Purpose)
		}
	}
	if len(owned) != 2 {
		t.Errorf("owned = %d, want 2", len(owned))
	}
	if other, _ := repo.CountByGuestToken(context.Background(), "g-2"); other != 1 {
		t.Errorf("unrelated guest artifacts = %d, want 1", other)
	}
}

func TestReconcile_UnknownTokenReturnsZero(t *testing.T) {
	svc := newTestService(newMemArtifactRepo())
	n, err := svc.reconciler.Reconcile(context.Background(), "never-used", 1)
	if err != nil || n != 0 {
		t.Errorf("Reconcile = (%d, %v), want (0, nil)", n, err)
	}
}

func TestReconcile_Validation(t *testing.T) {
	svc := newTestService(newMemArtifactRepo())

	_, err := svc.reconciler.Reconcile(context.Background(), "  ", 1)
	assertCode(t, err, model.ErrCodeValidation)

	_, err = svc.reconciler.Reconcile(context.Background(), "g", 0)
	assertCode(t, err, model.ErrCodeValidation)
}

func TestReconcile_RepositoryError(t *testing.T) {
	repo := newMemArtifactRepo()
	repo.reassignErr = errors.New("db down")
	svc := newTestService(repo)

	if _, err := svc.reconciler.Reconcile(context.Background(), "g", 1); !errors.Is(err, repo.reassignErr) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}

func TestLinkGuest_RequiresPrincipal(t *testing.T) {
	svc := newTestService(newMemArtifactRepo())
	_, err := svc.LinkGuest(context.Background(), nil, "g")
	assertCode(t, err, model.ErrCodeAuthRequired)
}

func TestLinkGuest_ReconcilesToPrincipal(t *testing.T) {
	repo := newMemArtifactRepo()
	seedGuest(t, repo, "g-9", "a")
	svc := newTestService(repo)

	n, err := svc.LinkGuest(context.Background(), principalFor(3, model.RoleUser), "g-9")
	if err != nil || n != 1 {
		t.Fatalf("LinkGuest = (%d, %v), want (1, nil)", n, err)
	}
	if c, _ := repo.CountByAccountID(context.Background(), 3); c != 1 {
		t.Errorf("account 3 count = %d, want 1", c)
	}
}

func TestResolveOwner(t *testing.T) {
	svc := newTestService(newMemArtifactRepo())
	user := principalFor(5, model.RoleUser)
	admin := principalFor(1, model.RoleAdmin)

	owner, err := svc.ResolveOwner(user, nil, "")
	if err != nil || owner.AccountID == nil || *owner.AccountID != 5 {
		t.Errorf("authenticated without owner should default to principal: %+v, %v", owner, err)
	}

	owner, err = svc.ResolveOwner(nil, nil, " g-1 ")
	if err != nil || owner.GuestSessionToken != "g-1" || owner.AccountID != nil {
		t.Errorf("guest owner = %+v, %v", owner, err)
	}

	owner, err = svc.ResolveOwner(user, nil, "g-1")
	if err != nil || owner.GuestSessionToken != "g-1" {
		t.Errorf("explicit guest token should be kept: %+v, %v", owner, err)
	}

	_, err = svc.ResolveOwner(nil, int64Ptr(5), "")
	assertCode(t, err, model.ErrCodeAuthRequired)

	_, err = svc.ResolveOwner(user, int64Ptr(6), "")
	assertCode(t, err, model.ErrCodeForbidden)

	owner, err = svc.ResolveOwner(admin, int64Ptr(6), "g-1")
	if err != nil || owner.AccountID == nil || *owner.AccountID != 6 || owner.GuestSessionToken != "" {
		t.Errorf("admin may act for account 6: %+v, %v", owner, err)
	}

	owner, err = svc.ResolveOwner(nil, nil, "")
	if err != nil || !owner.IsEmpty() {
		t.Errorf("no owner should stay empty: %+v, %v", owner, err)
	}
}

func TestList_ByOwner(t *testing.T) {
	repo := newMemArtifactRepo()
	seedAccount(t, repo, 5, "old")
	seedAccount(t, repo, 5, "new")
	seedGuest(t, repo, "g", "guest")
	svc := newTestService(repo)

	list, err := svc.List(context.Background(), principalFor(5, model.RoleUser), model.Owner{AccountID: int64Ptr(5)})
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	if len(list) != 2 || list[0].Title != "new" {
		t.Errorf("list = %+v, want newest first", list)
	}

	list, err = svc.List(context.Background(), nil, model.Owner{GuestSessionToken: "g"})
	if err != nil || len(list) != 1 {
		t.Errorf("guest list = %d, %v", len(list), err)
	}

	list, err = svc.List(context.Background(), nil, model.Owner{GuestSessionToken: "none"})
	if err != nil || list == nil || len(list) != 0 {
		t.Errorf("empty list should be non-nil: %v, %v", list, err)
	}
}

func TestList_Authorization(t *testing.T) {
	svc := newTestService(newMemArtifactRepo())

	_, err := svc.List(context.Background(), nil, model.Owner{AccountID: int64Ptr(5)})
	assertCode(t, err, model.ErrCodeAuthRequired)

	_, err = svc.List(context.Background(), principalFor(6, model.RoleUser), model.Owner{AccountID: int64Ptr(5)})
	assertCode(t, err, model.ErrCodeForbidden)

	if _, err := svc.List(context.Background(), principalFor(1, model.RoleAdmin), model.Owner{AccountID: int64Ptr(5)}); err != nil {
		t.Errorf("admin list should succeed: %v", err)
	}

	_, err = svc.List(context.Background(), nil, model.Owner{})
	assertCode(t, err, model.ErrCodeValidation)
}

func TestCount(t *testing.T) {
	repo := newMemArtifactRepo()
	seedGuest(t, repo, "g", "a")
	seedGuest(t, repo, "g", "b")
	svc := newTestService(repo)

	n, err := svc.Count(context.Background(), nil, model.Owner{GuestSessionToken: "g"})
	if err != nil || n != 2 {
		t.Errorf("Count = (%d, %v), want (2, nil)", n, err)
	}
}

func TestGet(t *testing.T) {
	repo := newMemArtifactRepo()
	owned := seedAccount(t, repo, 5, "mine")
	guest := seedGuest(t, repo, "g", "guest")
	svc := newTestService(repo)

	if _, err := svc.Get(context.Background(), principalFor(5, model.RoleUser), owned.ID); err != nil {
		t.Errorf("owner Get failed: %v", err)
	}
	_, err := svc.Get(context.Background(), principalFor(6, model.RoleUser), owned.ID)
	assertCode(t, err, model.ErrCodeForbidden)

	_, err = svc.Get(context.Background(), nil, owned.ID)
	assertCode(t, err, model.ErrCodeAuthRequired)

	if _, err := svc.Get(context.Background(), nil, guest.ID); err != nil {
		t.Errorf("guest artifact Get failed: %v", err)
	}

	_, err = svc.Get(context.Background(), nil, 999)
	assertCode(t, err, model.ErrCodeNotFound)
}

func TestDelete(t *testing.T) {
	repo := newMemArtifactRepo()
	owned := seedAccount(t, repo, 5, "mine")
	guest := seedGuest(t, repo, "g", "guest")
	svc := newTestService(repo)
	ctx := context.Background()

	err := svc.Delete(ctx, principalFor(6, model.RoleUser), owned.ID, "")
	assertCode(t, err, model.ErrCodeForbidden)

	if err := svc.Delete(ctx, principalFor(5, model.RoleUser), owned.ID, ""); err != nil {
		t.Errorf("owner Delete failed: %v", err)
	}

	err = svc.Delete(ctx, nil, guest.ID, "wrong")
	assertCode(t, err, model.ErrCodeForbidden)

	if err := svc.Delete(ctx, nil, guest.ID, "g"); err != nil {
		t.Errorf("guest Delete with matching token failed: %v", err)
	}

	err = svc.Delete(ctx, nil, guest.ID, "g")
	assertCode(t, err, model.ErrCodeNotFound)
}
