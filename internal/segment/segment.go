// Package segment turns a sorted stream of batch photos into per-person
// groups. A decoded QR code closes the running group and opens a new one for
// the person the code identifies; everything before the first recognized code
// is unmatched.
package segment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// Matcher resolves a decoded QR payload to a known registration.
// ErrNoMatch means the payload parsed but nobody in the database fits it.
type Matcher interface {
	Match(ctx context.Context, p *qr.Payload) (*store.Registration, error)
}

// ErrNoMatch is returned by a Matcher when no registration fits the payload.
var ErrNoMatch = errors.New("no registration matches payload")

// DecodeFunc reports the QR payload found in a photo, if any.
type DecodeFunc func(path string) (*qr.Payload, bool)

// Group is one person's consecutive run of photos. Photos[0] is always the
// QR code photo that opened the group.
type Group struct {
	Registration *store.Registration
	Photos       []store.Photo
	QRData       string
}

// Unmatched is a photo that belongs to nobody. QRData is set when the photo
// held a valid code for an unknown registration, so an operator can see why
// it was skipped rather than guessing.
type Unmatched struct {
	Photo  store.Photo
	QRData string
}

// GroupError records an emit callback failure for one group. Failures are
// per-group so one broken upload cannot discard the rest of the batch.
type GroupError struct {
	Registration *store.Registration
	Err          error
}

// Result summarizes one segmentation pass.
type Result struct {
	PeopleFound int
	Unmatched   []Unmatched
	Failed      []GroupError
}

// EmitFunc receives each completed group. An error marks the group failed
// without stopping the pass.
type EmitFunc func(ctx context.Context, g *Group) error

// Engine runs the segmentation state machine. It owns no I/O beyond the
// injected decode and match functions, which keeps the pass testable without
// image files or a database.
type Engine struct {
	decode  DecodeFunc
	matcher Matcher
	log     zerolog.Logger
}

func New(decode DecodeFunc, matcher Matcher, log zerolog.Logger) *Engine {
	return &Engine{decode: decode, matcher: matcher, log: log}
}

// Run walks photos in the given order and emits one group per person found.
// The caller is responsible for ordering; photos are expected sorted by
// filename. Each input photo lands in exactly one group or in
// Result.Unmatched.
func (e *Engine) Run(ctx context.Context, photos []store.Photo, emit EmitFunc) (*Result, error) {
	res := &Result{}
	var current *Group

	flush := func() {
		if current == nil {
			return
		}
		res.PeopleFound++
		if err := emit(ctx, current); err != nil {
			e.log.Error().Err(err).
				Str("person", current.Registration.Email).
				Msg("group emit failed")
			res.Failed = append(res.Failed, GroupError{Registration: current.Registration, Err: err})
		}
		current = nil
	}

	for _, photo := range photos {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		payload, ok := e.decode(photo.OriginalPath)
		if !ok {
			// ordinary photo: belongs to the running group, or to
			// nobody before the first recognized code
			if current != nil {
				current.Photos = append(current.Photos, photo)
			} else {
				res.Unmatched = append(res.Unmatched, Unmatched{Photo: photo})
			}
			continue
		}

		reg, err := e.matcher.Match(ctx, payload)
		if errors.Is(err, ErrNoMatch) {
			e.log.Warn().
				Str("file", photo.Filename).
				Str("email", payload.Email).
				Msg("qr code matches no registration")
			res.Unmatched = append(res.Unmatched, Unmatched{Photo: photo, QRData: payload.String()})
			continue
		}
		if err != nil {
			return res, fmt.Errorf("failed to match qr code in %s: %w", photo.Filename, err)
		}

		flush()
		current = &Group{
			Registration: reg,
			Photos:       []store.Photo{photo},
			QRData:       payload.String(),
		}
		e.log.Debug().
			Str("file", photo.Filename).
			Str("person", reg.Email).
			Msg("qr code opened new group")
	}

	flush()
	return res, nil
}
