package app

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/oj-server/internal/config"
	"github.com/fairyhunter13/oj-server/internal/domain"
)

// SchemaInitializer creates the tables when they do not exist yet.
type SchemaInitializer interface {
	InitSchema(ctx context.Context) error
}

// Bootstrap prepares the store for serving: schema, user 0 and contest 0.
// Contest 0 is rebuilt on every boot so it always spans the configured
// problems and the users known so far; submission checks never consult its
// member lists, they exist for display.
func Bootstrap(ctx context.Context, store SchemaInitializer, users domain.UserRepository, contests domain.ContestRepository, jc *config.JudgeConfig) error {
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("op=app.Bootstrap: %w", err)
	}
	if err := users.EnsureRoot(ctx); err != nil {
		return fmt.Errorf("op=app.Bootstrap: ensure root user: %w", err)
	}
	all, err := users.List(ctx)
	if err != nil {
		return fmt.Errorf("op=app.Bootstrap: list users: %w", err)
	}
	ids := make([]int64, 0, len(all))
	for _, u := range all {
		ids = append(ids, u.ID)
	}
	root := domain.Contest{
		ID:              domain.RootContestID,
		Name:            domain.RootUserName,
		From:            domain.MustTimestamp(domain.RootContestFrom),
		To:              domain.MustTimestamp(domain.RootContestTo),
		ProblemIDs:      jc.ProblemIDs(),
		UserIDs:         ids,
		SubmissionLimit: domain.RootContestCap,
	}
	if err := contests.PutRoot(ctx, root); err != nil {
		return fmt.Errorf("op=app.Bootstrap: put root contest: %w", err)
	}
	return nil
}
