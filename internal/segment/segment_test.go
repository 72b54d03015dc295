package segment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

type fakeMatcher struct {
	byToken map[string]*store.Registration
}

func (m *fakeMatcher) Match(_ context.Context, p *qr.Payload) (*store.Registration, error) {
	if reg, ok := m.byToken[p.Token]; ok {
		return reg, nil
	}
	return nil, ErrNoMatch
}

// testStream builds a photo list plus a decode function from a compact
// script: "-" is a plain photo, anything else is a QR code carrying that
// token.
func testStream(script []string) ([]store.Photo, DecodeFunc) {
	photos := make([]store.Photo, len(script))
	payloads := make(map[string]*qr.Payload, len(script))
	for i, tok := range script {
		path := fmt.Sprintf("/photos/IMG_%04d.jpg", i+1)
		photos[i] = store.Photo{
			ID:           int64(i + 1),
			Filename:     fmt.Sprintf("IMG_%04d.jpg", i+1),
			OriginalPath: path,
		}
		if tok != "-" {
			payloads[path] = &qr.Payload{
				FirstName:      "Person",
				LastName:       tok,
				Email:          tok + "@example.com",
				RegistrationID: int64(i + 1),
				Token:          tok,
			}
		}
	}
	decode := func(path string) (*qr.Payload, bool) {
		p, ok := payloads[path]
		return p, ok
	}
	return photos, decode
}

func reg(id int64, token string) *store.Registration {
	return &store.Registration{ID: id, FirstName: "Person", LastName: token, Email: token + "@example.com", QRToken: token}
}

func collect(t *testing.T, e *Engine, photos []store.Photo) (*Result, []*Group) {
	t.Helper()
	var groups []*Group
	res, err := e.Run(context.Background(), photos, func(_ context.Context, g *Group) error {
		groups = append(groups, g)
		return nil
	})
	if err != nil {
		t.Fatalf("segmentation failed: %v", err)
	}
	return res, groups
}

func TestSegmentationTypicalBatch(t *testing.T) {
	photos, decode := testStream([]string{"-", "alice", "-", "-", "bob", "-"})
	m := &fakeMatcher{byToken: map[string]*store.Registration{
		"alice": reg(1, "alice"),
		"bob":   reg(2, "bob"),
	}}
	e := New(decode, m, zerolog.Nop())

	res, groups := collect(t, e, photos)

	if res.PeopleFound != 2 {
		t.Errorf("expected 2 people, got %d", res.PeopleFound)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].Photo.Filename != "IMG_0001.jpg" {
		t.Errorf("expected the pre-code photo unmatched, got %+v", res.Unmatched)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Registration.ID != 1 || len(groups[0].Photos) != 3 {
		t.Errorf("first group: expected alice with 3 photos, got %d photos for id %d",
			len(groups[0].Photos), groups[0].Registration.ID)
	}
	if groups[0].Photos[0].Filename != "IMG_0002.jpg" {
		t.Errorf("expected the code photo to open the group, got %s", groups[0].Photos[0].Filename)
	}
	if groups[1].Registration.ID != 2 || len(groups[1].Photos) != 2 {
		t.Errorf("second group: expected bob with 2 photos, got %d photos for id %d",
			len(groups[1].Photos), groups[1].Registration.ID)
	}
}

func TestSegmentationBackToBackCodes(t *testing.T) {
	photos, decode := testStream([]string{"alice", "bob", "-"})
	m := &fakeMatcher{byToken: map[string]*store.Registration{
		"alice": reg(1, "alice"),
		"bob":   reg(2, "bob"),
	}}
	e := New(decode, m, zerolog.Nop())

	res, groups := collect(t, e, photos)

	if res.PeopleFound != 2 {
		t.Errorf("expected 2 people, got %d", res.PeopleFound)
	}
	// a group holding only its own code photo is still valid
	if len(groups[0].Photos) != 1 {
		t.Errorf("expected single-photo group, got %d photos", len(groups[0].Photos))
	}
	if len(groups[1].Photos) != 2 {
		t.Errorf("expected 2 photos in second group, got %d", len(groups[1].Photos))
	}
}

func TestSegmentationNoCodes(t *testing.T) {
	photos, decode := testStream([]string{"-", "-", "-"})
	e := New(decode, &fakeMatcher{}, zerolog.Nop())

	res, groups := collect(t, e, photos)

	if res.PeopleFound != 0 {
		t.Errorf("expected no people, got %d", res.PeopleFound)
	}
	if len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
	if len(res.Unmatched) != len(photos) {
		t.Errorf("expected all %d photos unmatched, got %d", len(photos), len(res.Unmatched))
	}
}

func TestSegmentationUnknownRegistration(t *testing.T) {
	photos, decode := testStream([]string{"alice", "-", "ghost", "-"})
	m := &fakeMatcher{byToken: map[string]*store.Registration{"alice": reg(1, "alice")}}
	e := New(decode, m, zerolog.Nop())

	res, groups := collect(t, e, photos)

	// the unknown code neither closes alice's group nor opens a new one
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Photos) != 3 {
		t.Errorf("expected alice to keep 3 photos, got %d", len(groups[0].Photos))
	}
	if len(res.Unmatched) != 1 {
		t.Fatalf("expected 1 unmatched photo, got %d", len(res.Unmatched))
	}
	if res.Unmatched[0].QRData == "" {
		t.Error("expected unmatched code photo to carry its payload")
	}
}

func TestSegmentationEmitErrorIsNotFatal(t *testing.T) {
	photos, decode := testStream([]string{"alice", "-", "bob", "-"})
	m := &fakeMatcher{byToken: map[string]*store.Registration{
		"alice": reg(1, "alice"),
		"bob":   reg(2, "bob"),
	}}
	e := New(decode, m, zerolog.Nop())

	uploadErr := errors.New("drive unavailable")
	var emitted []*Group
	res, err := e.Run(context.Background(), photos, func(_ context.Context, g *Group) error {
		if g.Registration.ID == 1 {
			return uploadErr
		}
		emitted = append(emitted, g)
		return nil
	})
	if err != nil {
		t.Fatalf("segmentation failed: %v", err)
	}

	if res.PeopleFound != 2 {
		t.Errorf("expected 2 people, got %d", res.PeopleFound)
	}
	if len(emitted) != 1 || emitted[0].Registration.ID != 2 {
		t.Errorf("expected bob's group to survive alice's failure, got %+v", emitted)
	}
	if len(res.Failed) != 1 || !errors.Is(res.Failed[0].Err, uploadErr) {
		t.Errorf("expected recorded failure for alice, got %+v", res.Failed)
	}
}

func TestSegmentationEveryPhotoLandsSomewhere(t *testing.T) {
	photos, decode := testStream([]string{"-", "alice", "-", "ghost", "bob", "-", "-", "-"})
	m := &fakeMatcher{byToken: map[string]*store.Registration{
		"alice": reg(1, "alice"),
		"bob":   reg(2, "bob"),
	}}
	e := New(decode, m, zerolog.Nop())

	res, groups := collect(t, e, photos)

	total := len(res.Unmatched)
	for _, g := range groups {
		total += len(g.Photos)
	}
	if total != len(photos) {
		t.Errorf("expected all %d photos accounted for, got %d", len(photos), total)
	}
}

func TestSegmentationCancelledContext(t *testing.T) {
	photos, decode := testStream([]string{"alice", "-"})
	m := &fakeMatcher{byToken: map[string]*store.Registration{"alice": reg(1, "alice")}}
	e := New(decode, m, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, photos, func(context.Context, *Group) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
