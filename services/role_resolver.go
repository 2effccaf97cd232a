package services

import (
	"context"
	"log/slog"

	"trainer-chat/contract"
	"trainer-chat/domain"
	"trainer-chat/observability"
)

// RoleResolver walks an ordered chain of trainer directories.
// The first directory that knows the principal wins. A failing directory is
// logged and skipped, so sending is never blocked on role resolution.
// Results are not cached: every call reads current directory state.
type RoleResolver struct {
	log         *slog.Logger
	directories []contract.TrainerDirectory
}

func NewRoleResolver(log *slog.Logger, directories ...contract.TrainerDirectory) *RoleResolver {
	return &RoleResolver{log: log, directories: directories}
}

func (r *RoleResolver) ResolveRole(ctx context.Context, principalID string) domain.Role {
	for _, directory := range r.directories {
		found, err := directory.Exists(ctx, principalID)
		if err != nil {
			r.log.Warn("Trainer directory lookup failed, treating as not found",
				"directory", directory.Name(),
				"principal", principalID,
				"error", err)
			observability.RoleLookupFailures.WithLabelValues(directory.Name()).Inc()
			continue
		}
		if found {
			r.log.Debug("Principal found in trainer directory", "directory", directory.Name(), "principal", principalID)
			return domain.RoleTrainer
		}
	}
	return domain.RoleRegularUser
}
