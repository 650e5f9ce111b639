package avr

import (
	"reflect"
	"testing"
)

func TestCatalog_Entries(t *testing.T) {
	tests := []struct {
		id            CommandID
		wire          string
		fireAndForget bool
		reply         string
		groups        []string
	}{
		{PowerStatus, "?P", false, "PWR0", []string{"0"}},
		{PowerOn, "PO", true, "PWR0", []string{}},
		{PowerOff, "PF", true, "PWR1", []string{}},
		{VolumeUp, "VU", false, "VOL122", []string{"122"}},
		{VolumeDown, "VD", false, "VOL120", []string{"120"}},
		{VolumeSet, "***VL", false, "VOL100", []string{"100"}},
		{VolumeGet, "?V", false, "VOL121", []string{"121"}},
		{MuteToggle, "MZ", true, "anything", nil},
		{MuteStatus, "?M", false, "MUT1", []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			cmd, ok := Lookup(tt.id)
			if !ok {
				t.Fatalf("Lookup(%v) not found", tt.id)
			}
			if cmd.Wire != tt.wire {
				t.Errorf("Wire = %q, want %q", cmd.Wire, tt.wire)
			}
			if cmd.FireAndForget != tt.fireAndForget {
				t.Errorf("FireAndForget = %v, want %v", cmd.FireAndForget, tt.fireAndForget)
			}
			groups, ok := cmd.Match(tt.reply)
			if !ok {
				t.Fatalf("Match(%q) failed", tt.reply)
			}
			if !reflect.DeepEqual(groups, tt.groups) {
				t.Errorf("Match(%q) groups = %#v, want %#v", tt.reply, groups, tt.groups)
			}
		})
	}
}

func TestCommand_MatchRejects(t *testing.T) {
	tests := []struct {
		id    CommandID
		reply string
	}{
		{PowerStatus, "PWR2"},
		{PowerStatus, "R"},
		{VolumeGet, "VOL12"},
		{VolumeGet, "E04"},
		{MuteStatus, "MUTX"},
	}
	for _, tt := range tests {
		cmd, _ := Lookup(tt.id)
		if _, ok := cmd.Match(tt.reply); ok {
			t.Errorf("%v matched %q", tt.id, tt.reply)
		}
	}
}

func TestCommand_Render(t *testing.T) {
	set, _ := Lookup(VolumeSet)
	get, _ := Lookup(VolumeGet)

	tests := []struct {
		name    string
		cmd     Command
		sub     string
		want    string
		wantErr bool
	}{
		{"parametric", set, "085", "085VL", false},
		{"parametric missing value", set, "", "", true},
		{"plain", get, "", "?V", false},
		{"plain with value", get, "085", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Render(tt.sub)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Render(%q) error = %v, wantErr %v", tt.sub, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.sub, got, tt.want)
			}
		})
	}
}

func TestCatalog_OnlyVolumeSetIsParametric(t *testing.T) {
	for id, cmd := range catalog {
		if cmd.ID != id {
			t.Errorf("catalog[%v].ID = %v", id, cmd.ID)
		}
		if cmd.Parametric() != (id == VolumeSet) {
			t.Errorf("%v Parametric() = %v", id, cmd.Parametric())
		}
	}
}

func TestCommandID_Names(t *testing.T) {
	for id := range catalog {
		got, ok := ParseCommandID(id.String())
		if !ok || got != id {
			t.Errorf("ParseCommandID(%q) = %v, %v", id.String(), got, ok)
		}
	}
	if got, ok := ParseCommandID("refresh"); !ok || got != Refresh {
		t.Errorf("ParseCommandID(\"refresh\") = %v, %v", got, ok)
	}
	if _, ok := Lookup(Refresh); ok {
		t.Error("Refresh has a catalog entry")
	}
	if _, ok := ParseCommandID("self_destruct"); ok {
		t.Error("ParseCommandID accepted an unknown name")
	}
	if got := CommandID(42).String(); got != "command(42)" {
		t.Errorf("CommandID(42).String() = %q", got)
	}
}
