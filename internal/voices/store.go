package voices

import "context"

// Store is the persistence contract for voice profiles.
// Get is unscoped because the inbound gateway only knows the profile id;
// account isolation is enforced by Service.
type Store interface {
	Insert(ctx context.Context, p VoiceProfile) error
	Get(ctx context.Context, id string) (VoiceProfile, error)
	ListByAccount(ctx context.Context, accountID string) ([]VoiceProfile, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	Update(ctx context.Context, p VoiceProfile) error
	Delete(ctx context.Context, accountID, id string) error
}
