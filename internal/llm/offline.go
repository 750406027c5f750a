package llm

import "context"

// OfflineClient never reaches a model. Every stage then runs on its
// deterministic fallback.
type OfflineClient struct{}

// Provider implements Client.
func (OfflineClient) Provider() string { return "offline" }

// Complete implements Client. It always fails with ErrOffline.
func (OfflineClient) Complete(ctx context.Context, _ Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", ErrOffline
}
