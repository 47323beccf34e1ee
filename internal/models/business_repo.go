package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const BusinessesTable = "businesses"

func (su *SupabaseRepo) GetBusiness(ctx context.Context, id string) (*Business, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	if su.supabaseClient == nil {
		return nil, fmt.Errorf("%w: supabase client is not initialized", ErrStoreUnavailable)
	}

	data, count, err := su.supabaseClient.
		From(BusinessesTable).
		Select("id,name,owner_id,owner_email", "exact", false).
		Eq("id", id).
		Execute()
	if err != nil {
		errMsg := err.Error()
		// postgrest answers malformed uuids with a 22P02 error rather than an empty set
		if strings.Contains(errMsg, "invalid input syntax") {
			return nil, ErrNotFound
		}
		return nil, unavailable("get business", err)
	}

	if count == 0 {
		return nil, ErrNotFound
	}

	var businesses []Business
	if err := json.Unmarshal(data, &businesses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal business: %v", err)
	}
	if len(businesses) == 0 {
		return nil, ErrNotFound
	}
	if len(businesses) > 1 {
		return nil, fmt.Errorf("multiple businesses found for ID %s", id)
	}

	return &businesses[0], nil
}
