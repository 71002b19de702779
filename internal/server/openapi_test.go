package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

func TestOpenAPIDocumentIsValid(t *testing.T) {
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)

	for _, path := range []string{"/plan", "/task/{id}", "/itinerary", "/itinerary/{id}"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var served openapi3.T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&served))
	assert.Equal(t, "Wayfinder API", served.Info.Title)
}

// contractCall performs a request and checks both sides of the exchange
// against the OpenAPI document.
func contractCall(t *testing.T, env *testEnv, method, path string, body any) []byte {
	t.Helper()
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)
	router, err := gorillamux.NewRouter(doc)
	require.NoError(t, err)

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	route, params, err := router.FindRoute(req)
	require.NoError(t, err)

	input := &openapi3filter.RequestValidationInput{Request: req, PathParams: params, Route: route}
	require.NoError(t, openapi3filter.ValidateRequest(context.Background(), input))

	resp := env.do(t, method, path, body)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 resp.StatusCode,
		Header:                 resp.Header,
		Body:                   io.NopCloser(bytes.NewReader(got)),
		Options:                &openapi3filter.Options{IncludeResponseStatus: true},
	})
	require.NoError(t, err, "%s %s -> %d %s", method, path, resp.StatusCode, got)
	return got
}

func TestResponsesMatchOpenAPI(t *testing.T) {
	env := newTestEnv(t)

	contractCall(t, env, http.MethodPost, "/plan", types.PlanRequest{Message: "Plan 2 days in Kyoto"})
	contractCall(t, env, http.MethodPost, "/plan", types.PlanRequest{Message: "hello"})
	contractCall(t, env, http.MethodGet, "/task/unknown-task", nil)

	saved := contractCall(t, env, http.MethodPost, "/itinerary", types.SaveItineraryRequest{
		LocalID:     "local-9",
		Destination: "Kyoto",
		PlanData:    json.RawMessage(`{"days":2}`),
	})
	var resp types.SaveItineraryResponse
	require.NoError(t, json.Unmarshal(saved, &resp))

	contractCall(t, env, http.MethodGet, "/itinerary", nil)
	contractCall(t, env, http.MethodDelete, "/itinerary/"+resp.RemoteID, nil)
	contractCall(t, env, http.MethodDelete, "/itinerary/"+resp.RemoteID, nil)
}
