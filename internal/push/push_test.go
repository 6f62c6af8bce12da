package push

import "testing"

func TestIsExpoPushToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]", true},
		{"ExpoPushToken[abc]", true},
		{"", false},
		{"fcm:abcdef", false},
		{"exponentpushtoken[abc]", false},
		{" ExponentPushToken[abc]", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			if got := IsExpoPushToken(tt.token); got != tt.want {
				t.Errorf("IsExpoPushToken(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestTicketErrorCode(t *testing.T) {
	if code := (Ticket{Status: StatusOK}).ErrorCode(); code != "" {
		t.Errorf("expected empty code, got %q", code)
	}

	ticket := Ticket{Status: StatusError, Details: &TicketDetails{Error: ErrCodeDeviceNotRegistered}}
	if code := ticket.ErrorCode(); code != ErrCodeDeviceNotRegistered {
		t.Errorf("expected DeviceNotRegistered, got %q", code)
	}
}
