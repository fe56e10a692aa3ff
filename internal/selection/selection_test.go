package selection_test

import (
	"testing"

	"corsair/internal/domain"
	"corsair/internal/selection"
)

func mission(id string) domain.Mission {
	return domain.Mission{ID: id, Name: "Mission " + id}
}

func TestToggleAddsAndRemoves(t *testing.T) {
	s := selection.NewSet()
	if added := s.Toggle(mission("a")); !added {
		t.Fatalf("expected first toggle to add")
	}
	if !s.Selected("a") {
		t.Fatalf("expected a selected")
	}
	if added := s.Toggle(mission("a")); added {
		t.Fatalf("expected second toggle to remove")
	}
	if s.Selected("a") || s.Len() != 0 {
		t.Fatalf("expected empty selection after double toggle")
	}
}

func TestToggleDoubleApplyRestoresOriginal(t *testing.T) {
	s := selection.NewSet()
	s.Toggle(mission("a"))
	s.Toggle(mission("b"))
	s.Toggle(mission("c"))
	s.Toggle(mission("b"))
	s.Toggle(mission("b"))
	got := s.Missions()
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d missions, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestClear(t *testing.T) {
	s := selection.NewSet()
	s.Toggle(mission("a"))
	s.Toggle(mission("b"))
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected cleared selection")
	}
}
