package adminapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimatrack/estimatrack/internal/rules"
	"github.com/estimatrack/estimatrack/internal/store"
)

// fakeRepo is an in-memory RuleRepository for handler tests.
type fakeRepo struct {
	rules  map[string]*rules.Rule
	nextID int
	err    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rules: make(map[string]*rules.Rule)}
}

func (f *fakeRepo) ListEnabledRules(ctx context.Context, shop string) ([]rules.Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []rules.Rule
	for _, r := range f.rules {
		if r.Shop == shop && r.Enabled {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetDefaultRule(ctx context.Context, shop string) (rules.Rule, bool, error) {
	if f.err != nil {
		return rules.Rule{}, false, f.err
	}
	for _, r := range f.rules {
		if r.Shop == shop && r.Enabled && r.IsDefault {
			return *r, true, nil
		}
	}
	return rules.Rule{}, false, nil
}

func (f *fakeRepo) CreateRule(ctx context.Context, r *rules.Rule) error {
	if f.err != nil {
		return f.err
	}
	f.nextID++
	r.ID = fmt.Sprintf("rule-%d", f.nextID)
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	f.rules[r.ID] = &cp
	return nil
}

func (f *fakeRepo) GetRule(ctx context.Context, shop, id string) (rules.Rule, error) {
	if f.err != nil {
		return rules.Rule{}, f.err
	}
	r, ok := f.rules[id]
	if !ok || r.Shop != shop {
		return rules.Rule{}, store.ErrRuleNotFound
	}
	return *r, nil
}

func (f *fakeRepo) ListRules(ctx context.Context, shop string, limit, offset int) ([]rules.Rule, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var all []rules.Rule
	for _, r := range f.rules {
		if r.Shop == shop {
			all = append(all, *r)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return []rules.Rule{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeRepo) UpdateRule(ctx context.Context, r *rules.Rule) error {
	if f.err != nil {
		return f.err
	}
	existing, ok := f.rules[r.ID]
	if !ok || existing.Shop != r.Shop {
		return store.ErrRuleNotFound
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	cp := *r
	f.rules[r.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteRule(ctx context.Context, shop, id string) error {
	if f.err != nil {
		return f.err
	}
	r, ok := f.rules[id]
	if !ok || r.Shop != shop {
		return store.ErrRuleNotFound
	}
	delete(f.rules, id)
	return nil
}

func do(api *API, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	api.Router.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

const validPayload = `{
	"target_type": "tag",
	"target_value": "fragile",
	"country_codes": ["us", "ca"],
	"estimated_min_days": 3,
	"estimated_max_days": 5,
	"priority": 10
}`

func TestCreateRule(t *testing.T) {
	t.Run("Should create a rule and normalize inputs", func(t *testing.T) {
		api := NewAPIWithConfig(newFakeRepo(), "", true)

		w := do(api, http.MethodPost, "/api/v1/rules?shop=demo.myshopify.com", validPayload)

		require.Equal(t, http.StatusCreated, w.Code)
		body := decode(t, w)
		assert.Equal(t, "tag", body["target_type"])
		assert.Equal(t, []any{"US", "CA"}, body["country_codes"])
		assert.Equal(t, true, body["enabled"])
		assert.NotEmpty(t, body["id"])
	})

	t.Run("Should require the shop parameter", func(t *testing.T) {
		api := NewAPIWithConfig(newFakeRepo(), "", true)

		w := do(api, http.MethodPost, "/api/v1/rules", validPayload)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Query parameter 'shop' is required", decode(t, w)["message"])
	})

	t.Run("Should reject an unknown target type", func(t *testing.T) {
		api := NewAPIWithConfig(newFakeRepo(), "", true)

		payload := strings.Replace(validPayload, `"tag"`, `"vendor"`, 1)
		w := do(api, http.MethodPost, "/api/v1/rules?shop=demo.myshopify.com", payload)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_INVALID_INPUT", decode(t, w)["code"])
	})

	t.Run("Should reject an inverted day window", func(t *testing.T) {
		api := NewAPIWithConfig(newFakeRepo(), "", true)

		payload := strings.Replace(validPayload, `"estimated_min_days": 3`, `"estimated_min_days": 9`, 1)
		w := do(api, http.MethodPost, "/api/v1/rules?shop=demo.myshopify.com", payload)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Estimated minimum days must not exceed maximum days", decode(t, w)["message"])
	})

	t.Run("Should reject empty country codes", func(t *testing.T) {
		api := NewAPIWithConfig(newFakeRepo(), "", true)

		payload := strings.Replace(validPayload, `["us", "ca"]`, `[" "]`, 1)
		w := do(api, http.MethodPost, "/api/v1/rules?shop=demo.myshopify.com", payload)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "At least one country code is required", decode(t, w)["message"])
	})

	t.Run("Should default the target value for default rules", func(t *testing.T) {
		api := NewAPIWithConfig(newFakeRepo(), "", true)

		payload := `{
			"target_type": "default",
			"country_codes": ["*"],
			"estimated_min_days": 5,
			"estimated_max_days": 7,
			"is_default": true
		}`
		w := do(api, http.MethodPost, "/api/v1/rules?shop=demo.myshopify.com", payload)

		require.Equal(t, http.StatusCreated, w.Code)
		body := decode(t, w)
		assert.Equal(t, "*", body["target_value"])
		assert.Equal(t, true, body["is_default"])
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		api := NewAPIWithConfig(newFakeRepo(), "", true)

		w := do(api, http.MethodPost, "/api/v1/rules?shop=demo.myshopify.com", "{oops")

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_INVALID_JSON", decode(t, w)["code"])
	})
}

func TestRuleLifecycle(t *testing.T) {
	api := NewAPIWithConfig(newFakeRepo(), "", true)
	const shopQS = "?shop=demo.myshopify.com"

	created := do(api, http.MethodPost, "/api/v1/rules"+shopQS, validPayload)
	require.Equal(t, http.StatusCreated, created.Code)
	id := decode(t, created)["id"].(string)

	t.Run("Should fetch the created rule", func(t *testing.T) {
		w := do(api, http.MethodGet, "/api/v1/rules/"+id+shopQS, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "fragile", decode(t, w)["target_value"])
	})

	t.Run("Should list rules with pagination metadata", func(t *testing.T) {
		w := do(api, http.MethodGet, "/api/v1/rules"+shopQS+"&page=1&page_size=5", "")
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		pagination := body["pagination"].(map[string]any)
		assert.Equal(t, float64(1), pagination["total_items"])
		assert.Equal(t, float64(1), pagination["total_pages"])
		assert.Equal(t, float64(5), pagination["page_size"])
	})

	t.Run("Should update the rule in place", func(t *testing.T) {
		payload := strings.Replace(validPayload, `"estimated_max_days": 5`, `"estimated_max_days": 8`, 1)
		w := do(api, http.MethodPut, "/api/v1/rules/"+id+shopQS, payload)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(8), decode(t, w)["estimated_max_days"])
	})

	t.Run("Should scope reads to the shop", func(t *testing.T) {
		w := do(api, http.MethodGet, "/api/v1/rules/"+id+"?shop=other.myshopify.com", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Should delete the rule", func(t *testing.T) {
		w := do(api, http.MethodDelete, "/api/v1/rules/"+id+shopQS, "")
		require.Equal(t, http.StatusNoContent, w.Code)

		w = do(api, http.MethodGet, "/api/v1/rules/"+id+shopQS, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuthentication(t *testing.T) {
	apiKey := "super-secret-key"
	sum := sha256.Sum256([]byte(apiKey))
	keyHash := hex.EncodeToString(sum[:])

	newAuthedAPI := func() *API {
		return NewAPI(newFakeRepo(), keyHash)
	}

	t.Run("Should reject requests without an API key", func(t *testing.T) {
		api := newAuthedAPI()
		w := do(api, http.MethodGet, "/api/v1/rules?shop=demo.myshopify.com", "")

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Missing API key", decode(t, w)["message"])
	})

	t.Run("Should reject a wrong API key", func(t *testing.T) {
		api := newAuthedAPI()

		r := httptest.NewRequest(http.MethodGet, "/api/v1/rules?shop=demo.myshopify.com", nil)
		r.Header.Set("X-API-Key", "wrong-key")
		w := httptest.NewRecorder()
		api.Router.ServeHTTP(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid API key", decode(t, w)["message"])
	})

	t.Run("Should accept the valid API key", func(t *testing.T) {
		api := newAuthedAPI()

		r := httptest.NewRequest(http.MethodGet, "/api/v1/rules?shop=demo.myshopify.com", nil)
		r.Header.Set("X-API-Key", apiKey)
		w := httptest.NewRecorder()
		api.Router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should leave the health endpoint public", func(t *testing.T) {
		api := newAuthedAPI()
		w := do(api, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decode(t, w)["status"])
	})
}
