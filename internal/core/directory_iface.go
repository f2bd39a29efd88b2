package core

import (
	"context"

	"github.com/calldeck/calldeck/internal/domain"
)

// DirectoryClient is the REST surface of the backend as the console
// consumes it.
type DirectoryClient interface {
	Register(ctx context.Context, username string) (*domain.User, error)
	Heartbeat(ctx context.Context, username string) error
	Users(ctx context.Context) ([]domain.User, error)
	Logs(ctx context.Context) ([]domain.LogEntry, error)
	ClearLogs(ctx context.Context) error
	InitiateCall(ctx context.Context, caller, callee string) error
}
