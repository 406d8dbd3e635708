package projects

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/ReviewHub/internal/adapters/blob"
	"github.com/dkeye/ReviewHub/internal/adapters/storage"
	"github.com/dkeye/ReviewHub/internal/app/auth"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/spf13/afero"
)

type evictRecorder struct {
	mu    sync.Mutex
	rooms []domain.RoomID
}

func (e *evictRecorder) EvictRoom(id domain.RoomID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rooms = append(e.rooms, id)
}

func (e *evictRecorder) evicted() []domain.RoomID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.RoomID(nil), e.rooms...)
}

type fixture struct {
	svc    *Service
	st     *storage.BadgerStore
	fs     afero.Fs
	rooms  *evictRecorder
	tokens *auth.ViewTokens
	clock  time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st, err := storage.NewBadgerStore("")
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	tokens, err := auth.NewViewTokens(strings.Repeat("k", 32), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		st:     st,
		fs:     afero.NewMemMapFs(),
		rooms:  &evictRecorder{},
		tokens: tokens,
		clock:  time.Now().UTC().Truncate(time.Second),
	}
	f.svc = NewService(st, blob.NewStore(f.fs), tokens, f.rooms, opts)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) user(t *testing.T, name string, tier domain.Tier) *domain.User {
	t.Helper()
	u, err := domain.NewUser(name+"@example.com", name)
	if err != nil {
		t.Fatal(err)
	}
	u.Tier = tier
	u.PasswordHash = "x"
	if err := f.st.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) upload(t *testing.T, owner *domain.User, in UploadInput) *domain.Project {
	t.Helper()
	if in.FileName == "" {
		in.FileName = "bracket.stl"
	}
	if in.Body == nil {
		in.Body = strings.NewReader("solid bracket")
	}
	p, err := f.svc.Upload(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return p
}

func TestUpload(t *testing.T) {
	f := newFixture(t, Options{DefaultExpiry: 72 * time.Hour})
	owner := f.user(t, "ann", domain.TierFree)

	p := f.upload(t, owner, UploadInput{FileName: "Gear.GLB", Body: strings.NewReader("glTF....")})
	if p.Format != domain.FormatGLB || p.Name != "Gear" || p.SizeBytes != 8 {
		t.Errorf("Upload() = %+v", p)
	}
	if p.FileKey != "models/"+string(p.ID)+".glb" {
		t.Errorf("FileKey = %s", p.FileKey)
	}
	if !p.ExpiresAt.Equal(f.clock.Add(72 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want default expiry", p.ExpiresAt)
	}
	if ok, _ := afero.Exists(f.fs, p.FileKey); !ok {
		t.Error("blob not stored")
	}
	got, err := f.svc.Get(context.Background(), p.ID)
	if err != nil || got.ID != p.ID {
		t.Errorf("Get() = %v, %v", got, err)
	}
}

func TestUploadLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{DefaultExpiry: 72 * time.Hour})
	free := f.user(t, "fred", domain.TierFree)

	t.Run("format", func(t *testing.T) {
		_, err := f.svc.Upload(ctx, free, UploadInput{FileName: "model.fbx", Body: strings.NewReader("x")})
		if !errors.Is(err, domain.ErrUnsupportedFormat) {
			t.Errorf("error = %v", err)
		}
	})
	t.Run("password on free tier", func(t *testing.T) {
		_, err := f.svc.Upload(ctx, free, UploadInput{FileName: "a.stl", Body: strings.NewReader("x"), Password: "password1"})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("error = %v", err)
		}
	})
	t.Run("expiry capped to tier", func(t *testing.T) {
		p := f.upload(t, free, UploadInput{ExpiresIn: 30 * 24 * time.Hour})
		if want := f.clock.Add(7 * 24 * time.Hour); !p.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt, want)
		}
		if err := f.svc.Delete(ctx, free, p.ID); err != nil {
			t.Fatal(err)
		}
	})
	t.Run("empty file", func(t *testing.T) {
		_, err := f.svc.Upload(ctx, free, UploadInput{FileName: "a.stl", Body: strings.NewReader("")})
		if !errors.Is(err, domain.ErrInvalid) {
			t.Errorf("error = %v", err)
		}
	})
	t.Run("active project count", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			f.upload(t, free, UploadInput{})
		}
		_, err := f.svc.Upload(ctx, free, UploadInput{FileName: "a.stl", Body: strings.NewReader("x")})
		if !errors.Is(err, domain.ErrLimitReached) {
			t.Errorf("error = %v", err)
		}
	})
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 16})
	owner := f.user(t, "big", domain.TierPro)

	_, err := f.svc.Upload(context.Background(), owner, UploadInput{
		FileName: "huge.obj",
		Body:     bytes.NewReader(make([]byte, 64)),
	})
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("error = %v, want ErrFileTooLarge", err)
	}
	entries, _ := afero.ReadDir(f.fs, "models")
	if len(entries) != 0 {
		t.Errorf("oversized blob left behind: %d entries", len(entries))
	}
}

func TestProtectedProjectAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	owner := f.user(t, "pat", domain.TierPro)
	other := f.user(t, "oscar", domain.TierFree)
	p := f.upload(t, owner, UploadInput{Password: "open-sesame"})

	if err := f.svc.AllowJoin(ctx, p.Room(), ""); !errors.Is(err, domain.ErrPasswordRequired) {
		t.Errorf("AllowJoin(no token) error = %v", err)
	}
	if _, _, err := f.svc.Unlock(ctx, p.ID, "wrong"); !errors.Is(err, domain.ErrBadCredentials) {
		t.Errorf("Unlock(wrong) error = %v", err)
	}
	tok, _, err := f.svc.Unlock(ctx, p.ID, "open-sesame")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := f.svc.AllowJoin(ctx, p.Room(), tok); err != nil {
		t.Errorf("AllowJoin(token) error = %v", err)
	}

	if _, _, err := f.svc.OpenModel(ctx, p.ID, other, ""); !errors.Is(err, domain.ErrPasswordRequired) {
		t.Errorf("OpenModel(stranger) error = %v", err)
	}
	rc, _, err := f.svc.OpenModel(ctx, p.ID, other, tok)
	if err != nil {
		t.Fatalf("OpenModel(token) error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "solid bracket" {
		t.Errorf("model = %q", body)
	}
	rc, _, err = f.svc.OpenModel(ctx, p.ID, owner, "")
	if err != nil {
		t.Fatalf("OpenModel(owner) error = %v", err)
	}
	_ = rc.Close()
}

func TestAllowJoinUnknownProject(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.svc.AllowJoin(context.Background(), "nope", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("AllowJoin() error = %v", err)
	}
}

func TestUpdateSharing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	owner := f.user(t, "sue", domain.TierPro)
	intruder := f.user(t, "ivan", domain.TierPro)
	p := f.upload(t, owner, UploadInput{})

	pw := "hunter22"
	if _, err := f.svc.UpdateSharing(ctx, intruder, p.ID, SharingInput{Password: &pw}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("UpdateSharing(intruder) error = %v", err)
	}
	got, err := f.svc.UpdateSharing(ctx, owner, p.ID, SharingInput{Password: &pw})
	if err != nil || !got.Protected() {
		t.Fatalf("UpdateSharing(password) = %+v, %v", got, err)
	}
	got, err = f.svc.UpdateSharing(ctx, owner, p.ID, SharingInput{ClearPassword: true})
	if err != nil || got.Protected() {
		t.Fatalf("UpdateSharing(clear) = %+v, %v", got, err)
	}

	f.clock = f.clock.Add(100 * time.Hour)
	if _, err := f.svc.Get(ctx, p.ID); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("Get() after expiry error = %v", err)
	}
	ext := 24 * time.Hour
	got, err = f.svc.UpdateSharing(ctx, owner, p.ID, SharingInput{ExpiresIn: &ext})
	if err != nil {
		t.Fatalf("UpdateSharing(extend) error = %v", err)
	}
	if got.Status != domain.ProjectActive || !got.ExpiresAt.Equal(f.clock.Add(ext)) {
		t.Errorf("extended project = %+v", got)
	}
}

func TestPasswordChangeRevokesViewTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	owner := f.user(t, "rae", domain.TierPro)
	p := f.upload(t, owner, UploadInput{Password: "first-pass"})

	tok, _, err := f.svc.Unlock(ctx, p.ID, "first-pass")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	pw := "second-pass"
	if _, err := f.svc.UpdateSharing(ctx, owner, p.ID, SharingInput{Password: &pw}); err != nil {
		t.Fatalf("UpdateSharing() error = %v", err)
	}
	if err := f.svc.AllowJoin(ctx, p.Room(), tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("AllowJoin(old token) error = %v", err)
	}
	if got := f.rooms.evicted(); len(got) != 1 || got[0] != p.Room() {
		t.Errorf("evicted = %v, want room of %s", got, p.ID)
	}

	tok, _, err = f.svc.Unlock(ctx, p.ID, "second-pass")
	if err != nil {
		t.Fatalf("Unlock(new) error = %v", err)
	}
	if err := f.svc.AllowJoin(ctx, p.Room(), tok); err != nil {
		t.Errorf("AllowJoin(new token) error = %v", err)
	}
}

func TestDeleteEvictsRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	owner := f.user(t, "dan", domain.TierFree)
	other := f.user(t, "eve", domain.TierFree)
	p := f.upload(t, owner, UploadInput{})

	if err := f.svc.Delete(ctx, other, p.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Delete(other) error = %v", err)
	}
	if err := f.svc.Delete(ctx, owner, p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Get(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
	if ok, _ := afero.Exists(f.fs, p.FileKey); ok {
		t.Error("blob survived delete")
	}
	if got := f.rooms.evicted(); len(got) != 1 || got[0] != p.Room() {
		t.Errorf("evicted = %v", got)
	}
}

func TestExpireDueAndSweeper(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{DefaultExpiry: time.Hour})
	owner := f.user(t, "sam", domain.TierFree)
	short := f.upload(t, owner, UploadInput{})
	long := f.upload(t, owner, UploadInput{ExpiresIn: 48 * time.Hour})

	f.clock = f.clock.Add(2 * time.Hour)
	n, err := f.svc.ExpireDue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ExpireDue() = %d, %v", n, err)
	}
	if got := f.rooms.evicted(); len(got) != 1 || got[0] != short.Room() {
		t.Errorf("evicted = %v", got)
	}
	if _, err := f.svc.Get(ctx, long.ID); err != nil {
		t.Errorf("long-lived project: %v", err)
	}
	if n, _ := f.svc.ExpireDue(ctx); n != 0 {
		t.Errorf("second ExpireDue() = %d, want 0", n)
	}

	sctx, cancel := context.WithCancel(ctx)
	w := NewSweeper(f.svc, time.Hour)
	done := make(chan error, 1)
	go func() { done <- w.Serve(sctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	if w.String() != "expiry-sweeper" {
		t.Errorf("String() = %s", w.String())
	}
}
