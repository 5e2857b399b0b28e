package mapview

import (
	"context"
	"dispatch-map-service/internal/domain"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpdateConnectionIfNotIdenticalSkipsNoops(t *testing.T) {
	r := NewConnectionsRegistry(nil)
	path := []domain.Coordinates{tallinn, offset(tallinn, 0.1, 0.1)}
	r.Add("a::b", r.BuildConnection(path, "#111"))
	c, _ := r.Get("a::b")

	r.UpdateConnectionIfNotIdentical("a::b", slices.Clone(path), "#111")
	// differences below the fingerprint precision serialize identically
	r.UpdateConnectionIfNotIdentical("a::b", []domain.Coordinates{offset(tallinn, 1e-9, 0), path[1]}, "#111")
	if c.Revision() != 0 {
		t.Fatalf("Revision after no-op updates = %d, want 0", c.Revision())
	}

	r.UpdateConnectionIfNotIdentical("a::b", path, "#222")
	if c.Revision() != 1 || c.Color() != "#222" {
		t.Fatalf("color update: revision %d color %s", c.Revision(), c.Color())
	}

	moved := []domain.Coordinates{tallinn, offset(tallinn, 0.2, 0.2)}
	r.UpdateConnectionIfNotIdentical("a::b", moved, "#222")
	if c.Revision() != 2 {
		t.Fatalf("path update: revision %d, want 2", c.Revision())
	}
	if diff := cmp.Diff(moved, c.Path()); diff != "" {
		t.Fatalf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteUnneededConnectionsKeepsIntersection(t *testing.T) {
	r := NewConnectionsRegistry(nil)
	path := []domain.Coordinates{tallinn, offset(tallinn, 0.1, 0.1)}
	for _, k := range []string{"a", "b", "c"} {
		r.Add(k, r.BuildConnection(path, "#111"))
	}

	r.DeleteUnneededConnections(map[string]struct{}{"b": {}, "c": {}, "d": {}})

	if diff := cmp.Diff([]string{"b", "c"}, r.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestShowConnectionsWithinArea(t *testing.T) {
	r := NewConnectionsRegistry(nil)
	far := domain.Coordinates{Lat: 10, Lng: 10}
	farther := domain.Coordinates{Lat: 11, Lng: 11}

	r.Add("half-in", r.BuildConnection([]domain.Coordinates{tallinn, far}, "#111"))
	r.Add("out", r.BuildConnection([]domain.Coordinates{far, farther}, "#111"))

	area := domain.NewBounds(59, 24, 60, 25)
	r.ShowConnectionsWithinArea(area)

	in, _ := r.Get("half-in")
	out, _ := r.Get("out")
	if !in.Shown() {
		t.Fatalf("connection with a point inside must be shown")
	}
	if out.Shown() {
		t.Fatalf("connection without points inside must be hidden")
	}

	r.HideAllConnections()
	if in.Shown() {
		t.Fatalf("HideAllConnections left a connection shown")
	}
}

func TestDeleteHidesConnection(t *testing.T) {
	r := NewConnectionsRegistry(nil)
	c := r.BuildConnection([]domain.Coordinates{tallinn, tallinn}, "#111")
	c.SetShown(true)
	r.Add("k", c)

	r.Delete("k")

	if c.Shown() {
		t.Fatalf("deleted connection still shown")
	}
	if _, ok := r.Get("k"); ok {
		t.Fatalf("deleted connection still registered")
	}
}

func TestCalculateDrivingTimeForConnection(t *testing.T) {
	dest := offset(tallinn, 0.1, 0.1)
	unknown := offset(tallinn, 0.3, 0.3)
	distances := &stubDistances{durations: map[string]int{dest.Fingerprint(): 420}}
	r := NewConnectionsRegistry(distances)

	r.Add("known", r.BuildConnection([]domain.Coordinates{tallinn, offset(tallinn, 0.05, 0), dest}, "#111"))
	r.Add("unknown", r.BuildConnection([]domain.Coordinates{tallinn, unknown}, "#111"))
	ctx := context.Background()

	got, err := r.CalculateDrivingTimeForConnection(ctx, "known")
	if err != nil || got != 420 {
		t.Fatalf("known = %d, %v; want 420", got, err)
	}

	got, err = r.CalculateDrivingTimeForConnection(ctx, "unknown")
	if err != nil || got != 0 {
		t.Fatalf("no data must degrade to 0, got %d, %v", got, err)
	}

	got, err = r.CalculateDrivingTimeForConnection(ctx, "missing")
	if err != nil || got != 0 {
		t.Fatalf("missing connection = %d, %v", got, err)
	}

	boom := errors.New("boom")
	distances.err = boom
	if _, err := r.CalculateDrivingTimeForConnection(ctx, "known"); !errors.Is(err, boom) {
		t.Fatalf("transport error = %v, want wrapped boom", err)
	}
}

func TestDrivingTimeWithoutProvider(t *testing.T) {
	got, err := lookupDrivingTime(context.Background(), nil, tallinn, tallinn)
	if err != nil || got != 0 {
		t.Fatalf("lookupDrivingTime(nil provider) = %d, %v", got, err)
	}
}
