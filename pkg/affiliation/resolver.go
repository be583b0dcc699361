// Package affiliation resolves the authorization roster of a multi-user chat
// room: its owners, admins, members and moderators.
package affiliation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// Querier sends an IQ and waits for the matching response.
type Querier interface {
	Query(ctx context.Context, iq stanza.IQ) (stanza.IQ, error)
}

// Set is the roster of one room, each list already stripped of the bot.
type Set struct {
	Owners     []string
	Admins     []string
	Members    []string
	Moderators []string
}

// All concatenates the four lists in roster order. A JID listed in more
// than one category appears once per category.
func (s Set) All() []string {
	out := make([]string, 0, len(s.Owners)+len(s.Admins)+len(s.Members)+len(s.Moderators))
	out = append(out, s.Owners...)
	out = append(out, s.Admins...)
	out = append(out, s.Members...)
	out = append(out, s.Moderators...)
	return out
}

// Unique is All without repeats, first occurrence wins.
func (s Set) Unique() []string {
	all := s.All()
	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, j := range all {
		if seen[j] {
			continue
		}
		seen[j] = true
		out = append(out, j)
	}
	return out
}

// Contains reports whether the bare JID of j is on the roster.
func (s Set) Contains(j string) bool {
	return slices.Contains(s.All(), stanza.Bare(j))
}

func (s Set) Len() int {
	return len(s.Owners) + len(s.Admins) + len(s.Members) + len(s.Moderators)
}

// QueryError is the failure of one category query.
type QueryError struct {
	Category string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s list: %v", e.Category, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

type Resolver struct {
	querier Querier
	self    string
	timeout time.Duration
}

// NewResolver builds a resolver that excludes self from every list. A zero
// timeout leaves each query bounded only by the caller's context.
func NewResolver(q Querier, self string, timeout time.Duration) *Resolver {
	return &Resolver{
		querier: q,
		self:    stanza.Bare(self),
		timeout: timeout,
	}
}

// Resolve runs the four category queries concurrently. The first failure
// cancels the queries still in flight and fails the resolution; every
// failure that was not caused by that cancellation is joined.
func (r *Resolver) Resolve(ctx context.Context, room string) (Set, error) {
	categories := stanza.AdminCategories()
	lists := make([][]string, len(categories))
	errs := make([]error, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range categories {
		g.Go(func() error {
			jids, err := r.query(gctx, room, c)
			if err != nil {
				if ctx.Err() == nil && gctx.Err() != nil && errors.Is(err, context.Canceled) {
					return err
				}
				errs[i] = &QueryError{Category: c.Name, Err: err}
				return err
			}
			lists[i] = jids
			return nil
		})
	}
	// Wait's error is the first of errs; the join below reports them all.
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return Set{}, fmt.Errorf("resolve affiliations of %s: %w", room, err)
	}

	set := Set{
		Owners:     lists[0],
		Admins:     lists[1],
		Members:    lists[2],
		Moderators: lists[3],
	}
	logger.DebugCF("affiliation", "Roster resolved", map[string]any{
		"room":       room,
		"owners":     len(set.Owners),
		"admins":     len(set.Admins),
		"members":    len(set.Members),
		"moderators": len(set.Moderators),
	})
	return set, nil
}

func (r *Resolver) query(ctx context.Context, room string, c stanza.AdminCategory) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := stanza.AdminQuery(room, c)
	if err != nil {
		return nil, err
	}
	resp, err := r.querier.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	items, err := stanza.ParseAdminItems(resp.Payload)
	if err != nil {
		return nil, err
	}

	jids := make([]string, 0, len(items))
	for _, item := range items {
		// Role lists of semi-anonymous rooms may omit the real JID.
		if item.JID == "" {
			continue
		}
		bare := stanza.Bare(item.JID)
		if bare == r.self {
			continue
		}
		jids = append(jids, bare)
	}
	return jids, nil
}
