package calls

import "context"

// Store is the call record collaborator. Every method is a network call that may fail.
type Store interface {
	// Insert assigns ID, CreatedAt and UpdatedAt and returns the stored call.
	Insert(ctx context.Context, c Call) (Call, error)
	// Update applies p and returns the updated call.
	// It returns ErrStatusConflict when p.ExpectStatus does not match.
	Update(ctx context.Context, id string, p Patch) (Call, error)
	Get(ctx context.Context, id string) (Call, error)
	// Query returns matching calls ordered by start_time ascending.
	Query(ctx context.Context, f Filter) ([]Call, error)
	// CountOpenByVoiceAgent counts scheduled and in-progress calls using a profile.
	CountOpenByVoiceAgent(ctx context.Context, voiceAgentID string) (int, error)
}
