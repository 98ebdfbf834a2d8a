package setting

import "testing"

func TestSettingEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{On, true},
		{Off, false},
		{"", false},
		{"true", false},
		{" 1", false},
	}
	for _, tt := range tests {
		if got := (Setting{Name: RegistrationOpen, Value: tt.value}).Enabled(); got != tt.want {
			t.Errorf("Enabled(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
	if FromBool(true) != On || FromBool(false) != Off {
		t.Error("FromBool gave the wrong value")
	}
}
