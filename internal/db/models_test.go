package db

import (
	"testing"

	"github.com/google/uuid"
)

func boolPtr(b bool) *bool { return &b }

func TestPreferencesUpdate_Apply(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		start  NotificationPreferences
		update PreferencesUpdate
		want   NotificationPreferences
	}{
		{
			name:   "single category",
			start:  DefaultPreferences(id),
			update: PreferencesUpdate{EventNotifications: boolPtr(false)},
			want:   NotificationPreferences{UserID: id, NotificationsEnabled: true, PrayerNotifications: true, SocialNotifications: true},
		},
		{
			name:   "master switch off clears categories",
			start:  DefaultPreferences(id),
			update: PreferencesUpdate{NotificationsEnabled: boolPtr(false), SocialNotifications: boolPtr(true)},
			want:   NotificationPreferences{UserID: id},
		},
		{
			name:   "master switch on keeps categories",
			start:  NotificationPreferences{UserID: id},
			update: PreferencesUpdate{NotificationsEnabled: boolPtr(true)},
			want:   NotificationPreferences{UserID: id, NotificationsEnabled: true},
		},
		{
			name:   "empty update",
			start:  DefaultPreferences(id),
			update: PreferencesUpdate{},
			want:   DefaultPreferences(id),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.update.Apply(tt.start); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestPreferencesUpdate_Empty(t *testing.T) {
	if !(PreferencesUpdate{}).Empty() {
		t.Error("expected zero update to be empty")
	}
	if (PreferencesUpdate{PrayerNotifications: boolPtr(false)}).Empty() {
		t.Error("expected update with a field to be non-empty")
	}
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "url wins",
			cfg:  Config{URL: "postgres://u:p@db:5432/app", Host: "ignored"},
			want: "postgres://u:p@db:5432/app",
		},
		{
			name: "discrete fields",
			cfg:  Config{Host: "localhost", Port: 5432, User: "postgres", Password: "secret", Database: "fellowship", SSLMode: "disable"},
			want: "host=localhost port=5432 user=postgres password=secret dbname=fellowship sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTablesFor(t *testing.T) {
	if _, err := tablesFor(ResourceEvent); err != nil {
		t.Errorf("expected event tables, got %v", err)
	}
	if _, err := tablesFor(ResourcePrayerRequest); err != nil {
		t.Errorf("expected prayer request tables, got %v", err)
	}
	if _, err := tablesFor("post"); err == nil {
		t.Error("expected error for an unknown resource type")
	}
}
