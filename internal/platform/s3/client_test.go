package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient creates a Client backed by a test HTTP server.
// The handler receives real S3 XML-protocol requests.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(server.URL),
		UsePathStyle:     true,
		Credentials:      credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		RetryMaxAttempts: 1,
	})
	return &Client{s3: client, region: "us-east-1"}
}

func xmlResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

func xmlError(code string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>%s</Code>
  <Message>%s</Message>
</Error>`, code, code)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient(context.Background(), Options{
		Endpoint:  "http://localhost:9000",
		Region:    "eu-central-1",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", client.region)
}

func TestCreateBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		errText string
	}{
		{name: "created", status: 200, body: `<CreateBucketResult/>`},
		{name: "already owned", status: 409, body: xmlError("BucketAlreadyOwnedByYou")},
		{name: "taken", status: 409, body: xmlError("BucketAlreadyExists"), wantErr: ErrBucketTaken},
		{name: "denied", status: 403, body: xmlError("AccessDenied"), errText: "failed to create bucket state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				xmlResponse(w, tt.status, tt.body)
			}))

			err := client.CreateBucket(context.Background(), "state")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestBucketExists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{name: "exists", status: 200, want: true},
		{name: "missing", status: 404},
		{name: "forbidden", status: 403, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				w.WriteHeader(tt.status)
			}))

			got, err := client.BucketExists(context.Background(), "state")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to check bucket state")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectRoundTrip(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	objects := map[string][]byte{}

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := strings.TrimPrefix(r.URL.Path, "/state/")
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[key] = body
			w.WriteHeader(200)
		case http.MethodGet:
			data, ok := objects[key]
			if !ok {
				xmlResponse(w, 404, xmlError("NoSuchKey"))
				return
			}
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			w.WriteHeader(200)
			_, _ = w.Write(data)
		case http.MethodDelete:
			delete(objects, key)
			w.WriteHeader(204)
		}
	}))

	ctx := context.Background()
	require.NoError(t, client.PutObject(ctx, "state", "demo/units/a.json", []byte(`{"unit":"a"}`)))

	data, err := client.GetObject(ctx, "state", "demo/units/a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"unit":"a"}`, string(data))

	require.NoError(t, client.DeleteObject(ctx, "state", "demo/units/a.json"))
	_, err = client.GetObject(ctx, "state", "demo/units/a.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestPutObject_Error(t *testing.T) {
	t.Parallel()
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xmlResponse(w, 403, xmlError("AccessDenied"))
	}))

	err := client.PutObject(context.Background(), "state", "k", []byte("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to put object k in bucket state")
}

func TestListObjects_Paginates(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo/units/", r.URL.Query().Get("prefix"))
		if r.URL.Query().Get("continuation-token") == "" {
			xmlResponse(w, 200, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>state</Name>
  <KeyCount>2</KeyCount>
  <IsTruncated>true</IsTruncated>
  <NextContinuationToken>page2</NextContinuationToken>
  <Contents><Key>demo/units/a.json</Key></Contents>
  <Contents><Key>demo/units/b.json</Key></Contents>
</ListBucketResult>`)
			return
		}
		xmlResponse(w, 200, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>state</Name>
  <KeyCount>1</KeyCount>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>demo/units/c.json</Key></Contents>
</ListBucketResult>`)
	}))

	keys, err := client.ListObjects(context.Background(), "state", "demo/units/")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo/units/a.json", "demo/units/b.json", "demo/units/c.json"}, keys)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		notFound bool
		owned    bool
		taken    bool
	}{
		{name: "nil", err: nil},
		{name: "no such bucket", err: fmt.Errorf("outer: %w", &s3types.NoSuchBucket{}), notFound: true},
		{name: "no such key", err: fmt.Errorf("outer: %w", &s3types.NoSuchKey{}), notFound: true},
		{name: "not found", err: &s3types.NotFound{}, notFound: true},
		{name: "owned", err: fmt.Errorf("outer: %w", &s3types.BucketAlreadyOwnedByYou{}), owned: true},
		{name: "taken", err: &s3types.BucketAlreadyExists{}, taken: true},
		{name: "generic", err: fmt.Errorf("inner error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.notFound, isNotFound(tt.err))
			assert.Equal(t, tt.owned, tt.err != nil && isBucketOwnedByYou(tt.err))
			assert.Equal(t, tt.taken, tt.err != nil && isBucketTaken(tt.err))
		})
	}
}
