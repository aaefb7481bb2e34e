package label

import (
	"context"
	"encoding/json"
)

// FakeClient serves canned registry data in tests
type FakeClient struct {
	Contracts         []ContractRecord
	Prequalifications []PrequalificationRecord
	Rates             json.RawMessage
	Err               error
}

var _ Client = (*FakeClient)(nil)

func (f *FakeClient) GetAllContracts(ctx context.Context, geiqID int) ([]ContractRecord, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Contracts, nil
}

func (f *FakeClient) GetAllPrequalifications(ctx context.Context, geiqID int) ([]PrequalificationRecord, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Prequalifications, nil
}

func (f *FakeClient) GetRates(ctx context.Context, geiqID int) (json.RawMessage, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Rates, nil
}
