package main

import "testing"

func TestParseCoord(t *testing.T) {
	got, err := parseCoord(" -3, 64 ,7")
	if err != nil || got != [3]int{-3, 64, 7} {
		t.Fatalf("parseCoord: got %v err=%v", got, err)
	}
	for _, bad := range []string{"", "1,2", "1,2,3,4", "a,b,c"} {
		if _, err := parseCoord(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestAdminURL(t *testing.T) {
	if got := adminURL(" http://127.0.0.1:8080/ ", "/admin/v1/state"); got != "http://127.0.0.1:8080/admin/v1/state" {
		t.Fatalf("adminURL: %q", got)
	}
}
