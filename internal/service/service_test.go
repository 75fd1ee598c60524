package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novneetsingh/Identity-Reconciliation/internal/model"
	"github.com/novneetsingh/Identity-Reconciliation/internal/reconcile"
	"github.com/novneetsingh/Identity-Reconciliation/internal/store"
)

// initializeIdentityService sets up the service on an in-memory contact store
// and returns a handle to the gin engine against which requests can be
// executed.
func initializeIdentityService() (*gin.Engine, *store.MemoryStore) {
	memory := store.NewMemoryStore()
	engine := reconcile.NewEngine(memory, 0)
	gin.SetMode(gin.ReleaseMode)
	return SetupHttpRouter(engine), memory
}

// runRequest executes the HTTP request with the specified arguments against
// the router and returns the response.
func runRequest(router *gin.Engine, method string, url string, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest(method, url, strings.NewReader(body))
	router.ServeHTTP(recorder, request)
	return recorder
}

// decodeContact unmarshals the consolidated contact out of a response body.
func decodeContact(t *testing.T, recorder *httptest.ResponseRecorder) model.ConsolidatedContact {
	t.Helper()
	var response model.IdentifyResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response.Contact
}

// TestIdentifyNewContact executes a POST request for a never-seen pair. It
// expects a fresh single-member group in the response.
func TestIdentifyNewContact(t *testing.T) {
	router, _ := initializeIdentityService()

	recorder := runRequest(router, "POST", "/identify", `
		{
			"email": "alice@example.com",
			"phoneNumber": "111222"
		}
	`)
	assert.Equal(t, http.StatusOK, recorder.Code)

	contact := decodeContact(t, recorder)
	assert.Equal(t, int64(1), contact.PrimaryContactId)
	assert.Equal(t, []string{"alice@example.com"}, contact.Emails)
	assert.Equal(t, []string{"111222"}, contact.PhoneNumbers)
	assert.Equal(t, []int64{}, contact.SecondaryContactIds)
}

// TestIdentifyMergeJourney walks the full flow over HTTP: two independent
// identities, then a bridging pair that merges them oldest-first.
func TestIdentifyMergeJourney(t *testing.T) {
	router, memory := initializeIdentityService()

	first := runRequest(router, "POST", "/identify", `{"email": "alice@example.com", "phoneNumber": "111"}`)
	require.Equal(t, http.StatusOK, first.Code)
	second := runRequest(router, "POST", "/identify", `{"email": "bob@example.com", "phoneNumber": "222"}`)
	require.Equal(t, http.StatusOK, second.Code)

	merged := runRequest(router, "POST", "/identify", `{"email": "alice@example.com", "phoneNumber": "222"}`)
	require.Equal(t, http.StatusOK, merged.Code)

	contact := decodeContact(t, merged)
	assert.Equal(t, decodeContact(t, first).PrimaryContactId, contact.PrimaryContactId)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, contact.Emails)
	assert.Equal(t, []string{"111", "222"}, contact.PhoneNumbers)
	assert.Equal(t, []int64{decodeContact(t, second).PrimaryContactId}, contact.SecondaryContactIds)

	// the bridge contributed no new attribute, so no record was created
	assert.Len(t, memory.Contacts(), 2)
}

// TestIdentifyEmptyRequest executes a POST request without any attribute. It
// expects a BAD REQUEST answer and an untouched store.
func TestIdentifyEmptyRequest(t *testing.T) {
	router, memory := initializeIdentityService()

	recorder := runRequest(router, "POST", "/identify", `{}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, memory.Contacts())
}

// TestIdentifyInvalidJSON executes a POST request with a malformed body. It
// expects a BAD REQUEST answer.
func TestIdentifyInvalidJSON(t *testing.T) {
	router, _ := initializeIdentityService()

	recorder := runRequest(router, "POST", "/identify", `{"email": `)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// TestFindGroupByContactID seeds a two-member group and fetches its
// consolidated view through the secondary's id.
func TestFindGroupByContactID(t *testing.T) {
	router, _ := initializeIdentityService()

	runRequest(router, "POST", "/identify", `{"email": "alice@example.com", "phoneNumber": "111"}`)
	seeded := runRequest(router, "POST", "/identify", `{"email": "alice@example.com", "phoneNumber": "222"}`)
	require.Equal(t, http.StatusOK, seeded.Code)
	want := decodeContact(t, seeded)
	require.Len(t, want.SecondaryContactIds, 1)

	recorder := runRequest(router, "GET", "/contacts/2", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, want, decodeContact(t, recorder))
}

// TestFindGroupUnknownID expects NOT FOUND for ids without a live contact and
// for non-numeric ids.
func TestFindGroupUnknownID(t *testing.T) {
	router, _ := initializeIdentityService()

	recorder := runRequest(router, "GET", "/contacts/9999", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = runRequest(router, "GET", "/contacts/INVALID", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

// TestHealth checks the liveness endpoint.
func TestHealth(t *testing.T) {
	router, _ := initializeIdentityService()

	recorder := runRequest(router, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
