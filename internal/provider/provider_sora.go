package provider

import (
	"context"
	"fmt"
)

// Sora delegates generation to another video backend until a direct Sora
// integration lands. Responses are tagged with routed_from/routed_to metadata
// so callers can tell the substitution apart from resolver-level routing.
type Sora struct {
	fromID   string
	toID     string
	delegate Adapter
}

func NewSora(fromID, toID string, delegate Adapter) *Sora {
	return &Sora{fromID: fromID, toID: toID, delegate: delegate}
}

func (s *Sora) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := s.delegate.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Metadata == nil {
		resp.Metadata = make(map[string]string, 2)
	}
	resp.Metadata[MetaRoutedFrom] = s.fromID
	resp.Metadata[MetaRoutedTo] = s.toID
	return resp, nil
}

// CheckStatus passes through when the delegate supports polling and fails
// explicitly when it does not, so a misconfigured delegate never reports a
// task as still running forever.
func (s *Sora) CheckStatus(ctx context.Context, id string) (*Response, error) {
	if checker, ok := s.delegate.(StatusChecker); ok {
		return checker.CheckStatus(ctx, id)
	}
	return nil, fmt.Errorf("status checking not supported for %s delegate", s.fromID)
}
