// internal/storage/jobs_elasticsearch_test.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-matcher/internal/common/logger"
)

func setupElasticsearch(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func hit(id string, ts int64, embedding string) string {
	return fmt.Sprintf(`{"_id":%q,"_source":{"job_id":%q,"job_title":"Title %s","location":"Austin","posted_timestamp":%d,"embedding":%s},"sort":[%d,%q]}`,
		id, id, id, ts, embedding, ts, id)
}

func TestElasticsearchJobCatalog_RecentJobs_Paginates(t *testing.T) {
	var bodies []map[string]interface{}
	client := setupElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/job_postings/_search"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(raw, &body))
		bodies = append(bodies, body)

		if _, ok := body["search_after"]; !ok {
			fmt.Fprintf(w, `{"hits":{"hits":[%s,%s]}}`, hit("j1", 300, "[1,0]"), hit("j2", 200, "null"))
			return
		}
		fmt.Fprintf(w, `{"hits":{"hits":[%s]}}`, hit("j3", 100, "[0,1]"))
	})

	catalog := NewElasticsearchJobCatalog(client, "job_postings", logger.NewTestLogger(t))
	catalog.pageSize = 2

	jobs, err := catalog.RecentJobs(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []float64{1, 0}, jobs[0].Vector)
	assert.False(t, jobs[1].HasVector())
	assert.Equal(t, "j3", jobs[2].JobID)

	require.Len(t, bodies, 2)
	rng := bodies[0]["query"].(map[string]interface{})["range"].(map[string]interface{})
	assert.Equal(t, float64(50), rng["posted_timestamp"].(map[string]interface{})["gte"])
	assert.Equal(t, []interface{}{float64(200), "j2"}, bodies[1]["search_after"])
}

func TestElasticsearchJobCatalog_RecentJobs_Error(t *testing.T) {
	client := setupElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"boom"}`)
	})
	catalog := NewElasticsearchJobCatalog(client, "job_postings", logger.NewTestLogger(t))

	_, err := catalog.RecentJobs(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestElasticsearchJobCatalog_Job(t *testing.T) {
	client := setupElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/_doc/j1"):
			assert.Equal(t, "embedding", r.URL.Query().Get("_source_excludes"))
			fmt.Fprint(w, `{"_id":"j1","found":true,"_source":{"job_title":"SRE","location":"Remote","is_remote":true,"posted_timestamp":100}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"_id":"nope","found":false}`)
		}
	})
	catalog := NewElasticsearchJobCatalog(client, "job_postings", logger.NewTestLogger(t))

	job, found, err := catalog.Job(context.Background(), "j1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "j1", job.JobID)
	assert.Equal(t, "SRE", job.Title)
	assert.True(t, job.IsRemote)
	assert.Nil(t, job.Vector)

	job, found, err = catalog.Job(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, job)
}
