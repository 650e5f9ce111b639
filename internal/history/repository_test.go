package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/infrastructure/database"
	"github.com/Dlizzz/catspaw/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newTestRepo(t)
	e := &Entry{Command: "volume_up", Source: "api", OK: true}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() || e.Power != "unknown" {
		t.Errorf("defaults not filled: %+v", e)
	}

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || res.Entries[0].ID != e.ID || !res.Entries[0].OK {
		t.Errorf("List() = %+v", res)
	}
	if !res.Entries[0].CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", res.Entries[0].CreatedAt, e.CreatedAt)
	}
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	seed := []Entry{
		{Command: "volume_set", Source: "api", OK: true},
		{Command: "volume_set", Source: "mqtt", OK: false, ErrorKind: "network_timeout"},
		{Command: "power_on", Source: "console", OK: true},
		{Command: "mute_toggle", Source: "api", OK: true},
	}
	for i := range seed {
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	no := false
	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", Filter{}, 4, "mute_toggle"},
		{"by command", Filter{Command: "volume_set"}, 2, "volume_set"},
		{"by source", Filter{Source: "api"}, 2, "mute_toggle"},
		{"failures", Filter{OK: &no}, 1, "volume_set"},
		{"since", Filter{Since: base.Add(2 * time.Minute)}, 2, "mute_toggle"},
		{"offset", Filter{Limit: 1, Offset: 3}, 4, "volume_set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) == 0 || res.Entries[0].Command != tt.wantFirst {
				t.Errorf("first entry = %+v, want command %s", res.Entries, tt.wantFirst)
			}
		})
	}
}

func TestList_ClampsPaging(t *testing.T) {
	repo := newTestRepo(t)
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, -3, DefaultLimit, 0},
		{500, 0, MaxLimit, 0},
		{10, 5, 10, 5},
	}
	for _, tt := range tests {
		res, err := repo.List(context.Background(), Filter{Limit: tt.limit, Offset: tt.offset})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != tt.wantLimit || res.Offset != tt.wantOffset {
			t.Errorf("List(%d, %d) paging = %d, %d", tt.limit, tt.offset, res.Limit, res.Offset)
		}
		if res.Entries == nil {
			t.Error("Entries is nil, want empty slice")
		}
	}
}

type warnLogger struct{ warned int }

func (l *warnLogger) Warn(string, ...any) { l.warned++ }

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *Entry) error { return errors.New("disk full") }

func TestRecorder(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo, &warnLogger{})

	rec.RecordCommand(context.Background(), avr.CommandRecord{
		Command:  avr.VolumeSet,
		Detail:   "up 10%",
		Source:   "api",
		Err:      errors.Join(avr.ErrNetworkTimeout, errors.New("no route")),
		Duration: 1500 * time.Millisecond,
		State:    avr.State{Volume: "-12.5 dB", Level: 136, Power: avr.PowerStateOn},
	})

	res, err := repo.List(context.Background(), Filter{})
	if err != nil || res.Total != 1 {
		t.Fatalf("List() = %+v, %v", res, err)
	}
	got := res.Entries[0]
	if got.Command != "volume_set" || got.Detail != "up 10%" || got.OK {
		t.Errorf("entry = %+v", got)
	}
	if got.ErrorKind != "network_timeout" || got.DurationMS != 1500 || got.Power != "on" || got.Level != 136 {
		t.Errorf("entry = %+v", got)
	}

	logger := &warnLogger{}
	NewRecorder(failingRepo{}, logger).RecordCommand(context.Background(), avr.CommandRecord{Command: avr.MuteToggle})
	if logger.warned != 1 {
		t.Errorf("warnings = %d, want 1", logger.warned)
	}
}
