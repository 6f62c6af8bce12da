package db

import (
	"time"

	"github.com/google/uuid"
)

// User is the public profile the notification texts and follow lists need.
type User struct {
	ID             uuid.UUID `json:"id"`
	FullName       string    `json:"full_name"`
	Username       *string   `json:"username,omitempty"`
	ProfilePicture *string   `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PushToken is one registered device. Rows are soft-disabled, never deleted.
type PushToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Token      string     `json:"expo_push_token"`
	Platform   *string    `json:"platform,omitempty"`
	DeviceID   *string    `json:"device_id,omitempty"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NotificationPreferences is one row per user.
type NotificationPreferences struct {
	UserID               uuid.UUID `json:"-"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	EventNotifications   bool      `json:"event_notifications"`
	PrayerNotifications  bool      `json:"prayer_notifications"`
	SocialNotifications  bool      `json:"social_notifications"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultPreferences are used for users that never saved any.
func DefaultPreferences(userID uuid.UUID) NotificationPreferences {
	return NotificationPreferences{
		UserID:               userID,
		NotificationsEnabled: true,
		EventNotifications:   true,
		PrayerNotifications:  true,
		SocialNotifications:  true,
	}
}

// PreferencesUpdate carries the fields a client chose to change.
type PreferencesUpdate struct {
	NotificationsEnabled *bool
	EventNotifications   *bool
	PrayerNotifications  *bool
	SocialNotifications  *bool
}

// Apply returns prefs with the set fields overwritten. Turning the master
// switch off turns every category off as well.
func (u PreferencesUpdate) Apply(prefs NotificationPreferences) NotificationPreferences {
	if u.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.EventNotifications != nil {
		prefs.EventNotifications = *u.EventNotifications
	}
	if u.PrayerNotifications != nil {
		prefs.PrayerNotifications = *u.PrayerNotifications
	}
	if u.SocialNotifications != nil {
		prefs.SocialNotifications = *u.SocialNotifications
	}
	if u.NotificationsEnabled != nil && !*u.NotificationsEnabled {
		prefs.EventNotifications = false
		prefs.PrayerNotifications = false
		prefs.SocialNotifications = false
	}
	return prefs
}

// Empty reports whether no field is set.
func (u PreferencesUpdate) Empty() bool {
	return u.NotificationsEnabled == nil && u.EventNotifications == nil &&
		u.PrayerNotifications == nil && u.SocialNotifications == nil
}

// FollowStats counts both sides of a user's follow graph.
type FollowStats struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// ResourceType names a likeable, commentable resource table family.
type ResourceType string

const (
	ResourcePrayerRequest ResourceType = "prayer_request"
	ResourceEvent         ResourceType = "event"
)

// Resource is the slice of an event or prayer request that notifications need.
type Resource struct {
	ID        uuid.UUID    `json:"id"`
	Type      ResourceType `json:"type"`
	OwnerID   uuid.UUID    `json:"owner_id"`
	Title     string       `json:"title"`
	Anonymous bool         `json:"anonymous"`
}

type Event struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

type PrayerRequest struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Anonymous bool      `json:"anonymous"`
	CreatedAt time.Time `json:"created_at"`
}

type Like struct {
	ID         uuid.UUID `json:"id"`
	ResourceID uuid.UUID `json:"resource_id"`
	UserID     uuid.UUID `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Comment struct {
	ID         uuid.UUID `json:"id"`
	ResourceID uuid.UUID `json:"resource_id"`
	UserID     uuid.UUID `json:"user_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
