package cli

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chronohq/chrono/chronod/httpmw"
)

// envSessionLookup reads a static token table from CHRONO_SESSION_TOKENS,
// formatted "token:user-uuid[:admin]" comma separated. Session issuance
// belongs to the surrounding platform; the standalone server only needs
// something to verify against, and a static table covers development and
// single-tenant deployments.
func envSessionLookup(logger slog.Logger) httpmw.SessionLookup {
	sessions := map[string]httpmw.Session{}
	raw := os.Getenv("CHRONO_SESSION_TOKENS")
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 2 {
			logger.Warn(context.Background(), "skipping malformed session token entry")
			continue
		}
		userID, err := uuid.Parse(parts[1])
		if err != nil {
			logger.Warn(context.Background(), "skipping session token with invalid user id", slog.Error(err))
			continue
		}
		sessions[parts[0]] = httpmw.Session{
			UserID: userID,
			Admin:  len(parts) > 2 && parts[2] == "admin",
		}
	}

	return func(_ context.Context, token string) (httpmw.Session, error) {
		session, ok := sessions[token]
		if !ok {
			return httpmw.Session{}, xerrors.New("unknown session token")
		}
		return session, nil
	}
}
