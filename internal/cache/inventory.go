package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	UserKeyPrefix         = "user:%s"
	PatchKeyPrefix        = "patch:%d"
	RevokedTokenKeyPrefix = "revoked-token:%s"
)

const (
	UserTTL  = 5 * time.Minute
	PatchTTL = 30 * time.Minute
)

func UserKey(userID uuid.UUID) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PatchKey(patchNumber uint) string {
	return fmt.Sprintf(PatchKeyPrefix, patchNumber)
}

func RevokedTokenKey(tokenID string) string {
	return fmt.Sprintf(RevokedTokenKeyPrefix, tokenID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userIDs ...uuid.UUID) {
	for _, id := range userIDs {
		Invalidate(ctx, UserKey(id))
	}
}

func InvalidatePatch(ctx context.Context, patchNumber uint) {
	Invalidate(ctx, PatchKey(patchNumber))
}
