package engine

import (
	"context"
	"errors"
	"fmt"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/model"
)

// AttemptMerge merges branch from into branch into. The merge is computed
// against the current heads; conflicts suspend it as a session awaiting picks.
func (e *engineImpl) AttemptMerge(ctx context.Context, from, into string, opts MergeOptions) (*MergeResult, error) {
	if from == into {
		return nil, fmt.Errorf("%w: %s", sitevcerrors.ErrSameBranch, from)
	}
	mb, err := e.MergeBase(ctx, from, into)
	if err != nil {
		return nil, err
	}
	if mb.Base == mb.Right {
		e.splog.Debug("%s already contains %s", into, from)
		return &MergeResult{UpToDate: true}, nil
	}

	session := merge.NewSession(from, into, mb.Base, mb.Left, mb.Right)
	for id, res := range opts.Picks {
		session.Picks[id] = res
	}
	e.splog.Event("merge attempt", "session", session.ID, "from", from, "into", into,
		"ancestor", mb.Base, "left", mb.Left, "right", mb.Right)

	result, err := e.compute(ctx, session)
	if err != nil {
		// integrity failures abort the attempt before anything is recorded
		e.splog.Event("merge failed", "session", session.ID, "error", err.Error())
		return nil, err
	}
	if err := e.transition(session, merge.StateClassifying); err != nil {
		return nil, err
	}
	session.Conflicts = result.Conflicts()

	next := merge.StateApplying
	if len(session.Pending()) > 0 {
		next = merge.StateAwaitingResolution
	}
	if err := e.transition(session, next); err != nil {
		return nil, err
	}

	out := &MergeResult{Session: session, Result: result}
	if opts.Preview {
		return out, nil
	}
	if next == merge.StateApplying && (opts.Commit || e.autoCommit) {
		version, err := e.apply(ctx, session, result)
		out.Version = version
		return out, err
	}
	if err := e.sessions.PersistSession(session); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveConflict records a pick for one conflict of a session
func (e *engineImpl) ResolveConflict(_ context.Context, sessionID, conflictID string, pick merge.Resolution) (*merge.Session, error) {
	session, err := e.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Resolve(conflictID, pick); err != nil {
		return nil, err
	}
	if err := e.sessions.PersistSession(session); err != nil {
		return nil, err
	}
	e.splog.Event("conflict resolved", "session", sessionID, "conflict", conflictID,
		"side", string(pick.Side), "pending", len(session.Pending()))
	return session, nil
}

// CommitMerge re-runs the merge with the session's picks and commits the result
// as a version whose parents are the into and from heads. It fails with
// UnresolvedConflictError while picks are missing and StaleBranchHeadError
// when into moved since the attempt; a stale session is aborted.
func (e *engineImpl) CommitMerge(ctx context.Context, sessionID string) (string, error) {
	session, err := e.sessions.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if session.State.Terminal() {
		return "", sitevcerrors.NewInvalidTransitionError(string(session.State), string(merge.StateApplying))
	}
	if pending := session.Pending(); len(pending) > 0 {
		return "", sitevcerrors.NewUnresolvedConflictError(session.ID, pending)
	}

	result, err := e.compute(ctx, session)
	if err != nil {
		return "", err
	}
	if pending := result.Pending(session.Picks); len(pending) > 0 {
		return "", sitevcerrors.NewUnresolvedConflictError(session.ID, pending)
	}
	if session.State == merge.StateAwaitingResolution {
		if err := e.transition(session, merge.StateApplying); err != nil {
			return "", err
		}
	}
	return e.apply(ctx, session, result)
}

// AbortMerge ends a session without committing
func (e *engineImpl) AbortMerge(_ context.Context, sessionID, reason string) error {
	session, err := e.sessions.GetSession(sessionID)
	if err != nil {
		return err
	}
	prev := session.State
	if err := session.Abort(reason); err != nil {
		return err
	}
	e.splog.Event("merge state", "session", sessionID, "from", string(prev), "to", string(session.State), "reason", reason)
	return e.sessions.PersistSession(session)
}

// GetSession returns a merge session
func (e *engineImpl) GetSession(_ context.Context, sessionID string) (*merge.Session, error) {
	return e.sessions.GetSession(sessionID)
}

// ListSessions returns every known session, oldest first
func (e *engineImpl) ListSessions(_ context.Context) ([]*merge.Session, error) {
	return e.sessions.ListSessions()
}

// PruneSessions clears every terminal session
func (e *engineImpl) PruneSessions(_ context.Context) (int, error) {
	sessions, err := e.sessions.ListSessions()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, s := range sessions {
		if !s.State.Terminal() {
			continue
		}
		if err := e.sessions.ClearSession(s.ID); err != nil {
			return pruned, err
		}
		e.splog.Event("merge session pruned", "session", s.ID, "state", string(s.State))
		pruned++
	}
	return pruned, nil
}

// PreviewSession recomputes a session's merge with its current picks
func (e *engineImpl) PreviewSession(ctx context.Context, sessionID string) (*merge.Result, error) {
	session, err := e.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return e.compute(ctx, session)
}

// compute materializes the session's version triple and merges it
func (e *engineImpl) compute(ctx context.Context, session *merge.Session) (*merge.Result, error) {
	var bundles [3]*model.Bundle
	for i, id := range []string{session.Ancestor, session.Left, session.Right} {
		b, err := e.store.GetBundle(ctx, id)
		if err != nil {
			return nil, err
		}
		bundles[i] = b
	}
	return e.resolver.MergeBundles(bundles[0], bundles[1], bundles[2], session.Picks)
}

// apply commits a merge result whose session is in the applying state
func (e *engineImpl) apply(ctx context.Context, session *merge.Session, result *merge.Result) (string, error) {
	head, err := e.store.GetBranch(ctx, session.Into)
	if err != nil {
		return "", err
	}
	if head != session.Left {
		return "", e.stale(session, head)
	}

	message := fmt.Sprintf("Merge branch '%s' into %s", session.From, session.Into)
	b, err := model.Flatten(result.Merged, e.schema)
	if err != nil {
		return "", err
	}
	id, err := e.store.CommitBundle(ctx, []string{session.Left, session.Right}, b, e.meta(message))
	if err != nil {
		return "", err
	}
	if err := e.store.SetBranch(ctx, session.Into, id, session.Left); err != nil {
		var stale *sitevcerrors.StaleBranchHeadError
		if errors.As(err, &stale) {
			return "", e.stale(session, stale.Actual)
		}
		return "", err
	}

	session.Version = id
	if err := e.transition(session, merge.StateMerged); err != nil {
		return "", err
	}
	if err := e.sessions.PersistSession(session); err != nil {
		return "", err
	}
	e.splog.Info("Merged %s into %s as %s", session.From, session.Into, id)
	return id, nil
}

// stale aborts a session whose target branch moved and returns the error to report
func (e *engineImpl) stale(session *merge.Session, actual string) error {
	err := sitevcerrors.NewStaleBranchHeadError(session.Into, session.Left, actual)
	if abortErr := session.Abort(err.Error()); abortErr == nil {
		e.splog.Event("merge state", "session", session.ID, "to", string(merge.StateAborted), "reason", "stale branch head")
		if perr := e.sessions.PersistSession(session); perr != nil {
			e.splog.Debug("failed to persist aborted session %s: %v", session.ID, perr)
		}
	}
	return err
}

func (e *engineImpl) transition(session *merge.Session, next merge.State) error {
	prev := session.State
	if err := session.Transition(next); err != nil {
		return err
	}
	e.splog.Event("merge state", "session", session.ID, "from", string(prev), "to", string(next))
	return nil
}
