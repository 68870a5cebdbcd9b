package model

import (
	"testing"
	"time"
)

func TestDeviceIDPrefixDeterminesOrdering(t *testing.T) {
	mac, _ := ParseMAC("AA:BB:CC:DD:EE:FF")
	ble := DeviceIDFromMAC(PrefixBLE, mac)
	classic := DeviceIDFromMAC(PrefixClassic, mac)

	if !ble.Less(classic) && !classic.Less(ble) {
		t.Fatal("expected distinct prefixes to be ordered")
	}
	if ble.Less(ble) {
		t.Fatal("Less must be irreflexive")
	}
	if ble.String() == classic.String() {
		t.Fatal("expected distinct string forms for distinct prefixes")
	}
}

func TestRefreshTimeNone(t *testing.T) {
	r := NoRefresh()
	if !r.IsNone() {
		t.Fatal("expected NoRefresh to report IsNone")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading Duration() of a none RefreshTime")
		}
	}()
	r.Duration()
}

func TestRefreshTimePositive(t *testing.T) {
	r := NewRefreshTime(5 * time.Second)
	if r.IsNone() {
		t.Fatal("expected positive RefreshTime to not report IsNone")
	}
	if r.Duration() != 5*time.Second {
		t.Fatalf("expected 5s, got %v", r.Duration())
	}
}

func TestRefreshTimeRejectsNonPositive(t *testing.T) {
	cases := []time.Duration{0, -1 * time.Second}
	for _, d := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewRefreshTime(%v): expected panic", d)
				}
			}()
			NewRefreshTime(d)
		}()
	}
}
