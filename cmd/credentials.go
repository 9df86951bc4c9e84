package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
	"github.com/urfave/cli/v3"
)

type credentialEntry struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// CredentialsList prints every stored credential id, marking the leader.
func (r *Runner) CredentialsList(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openValidStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	entries := make([]credentialEntry, 0, len(ids))
	for _, id := range ids {
		role := "follower"
		if id == r.config.Sync.LeaderID {
			role = "leader"
		}
		entries = append(entries, credentialEntry{ID: id, Role: role})
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	r.writePlainHeader(fmt.Sprintf("Credentials (%d)", len(entries)))
	if len(entries) == 0 {
		return r.writePlain("No credentials stored\n")
	}
	for _, e := range entries {
		if e.Role == "leader" {
			r.writePlain("  %s (leader)\n", e.ID)
		} else {
			r.writePlain("  %s\n", e.ID)
		}
	}
	return nil
}

// CredentialsDelete removes a follower credential. The follower drops out of the roster on the next change.
func (r *Runner) CredentialsDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: credential id", shared.ErrMissingArgument)
	}
	if err := store.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidArgument, err)
	}

	st, err := r.openValidStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}

	r.logger.Info("credential deleted", "id", id)
	return r.writePlain("✓ Deleted credential %s\n", id)
}

// CredentialsResetMain removes the leader credential. Deleting a missing leader is not an error.
func (r *Runner) CredentialsResetMain(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openValidStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	leader := r.config.Sync.LeaderID
	if err := st.Delete(ctx, leader); errors.Is(err, shared.ErrCredentialNotFound) {
		return r.writePlain("No leader registered\n")
	} else if err != nil {
		return fmt.Errorf("failed to reset leader: %w", err)
	}

	r.logger.Info("leader reset", "id", leader)
	return r.writePlain("✓ Reset leader %s\n", leader)
}

// CredentialsWatch prints credential changes as followers sign in and out, until interrupted.
func (r *Runner) CredentialsWatch(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openValidStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	fs, ok := st.(*store.FileStore)
	if !ok {
		return fmt.Errorf("%w: watch requires the file store driver, not %q", shared.ErrInvalidConfig, r.config.Store.Driver)
	}

	r.writePlain("Watching %s\n", fs.TokensDir())
	err = fs.Watch(ctx, func(c store.Change) {
		r.writePlain("%s %s\n", c.Op, c.ID)
	})
	return ignoreCanceled(err)
}
