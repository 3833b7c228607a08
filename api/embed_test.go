package api

import "testing"

func TestOperations(t *testing.T) {
	ops, err := Operations()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"GET /api/providers":                      false,
		"POST /api/providers/{id}/sync":           false,
		"PUT /api/playback/sessions/{id}/channel": false,
		"PATCH /api/channels/{id}/favorite":       false,
		"DELETE /api/playback/sessions/{id}":      false,
	}
	for _, op := range ops {
		if _, ok := want[op]; ok {
			want[op] = true
		}
	}
	for op, seen := range want {
		if !seen {
			t.Errorf("%s not documented", op)
		}
	}
}
