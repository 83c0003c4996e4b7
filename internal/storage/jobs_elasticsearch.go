// internal/storage/jobs_elasticsearch.go
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/models"
)

const defaultPageSize = 500

// ElasticsearchJobCatalog reads job postings from an Elasticsearch index
// populated by the ingestion pipeline.
type ElasticsearchJobCatalog struct {
	client   *elasticsearch.Client
	index    string
	pageSize int
	logger   logger.Logger
}

func NewElasticsearchJobCatalog(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchJobCatalog {
	return &ElasticsearchJobCatalog{
		client:   client,
		index:    index,
		pageSize: defaultPageSize,
		logger:   log.WithFields(map[string]interface{}{"store": "jobs", "index": index}),
	}
}

type jobDocument struct {
	JobID           string    `json:"job_id"`
	Title           string    `json:"job_title"`
	Location        string    `json:"location"`
	EmploymentType  string    `json:"employment_type"`
	IsRemote        bool      `json:"is_remote"`
	PostedAt        string    `json:"posted_at"`
	PostedTimestamp int64     `json:"posted_timestamp"`
	Embedding       []float64 `json:"embedding"`
}

func (d jobDocument) posting(id string) models.JobPosting {
	if d.JobID == "" {
		d.JobID = id
	}
	return models.JobPosting{
		JobID:           d.JobID,
		Title:           d.Title,
		Location:        d.Location,
		EmploymentType:  d.EmploymentType,
		IsRemote:        d.IsRemote,
		PostedAt:        d.PostedAt,
		PostedTimestamp: d.PostedTimestamp,
		Vector:          d.Embedding,
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string        `json:"_id"`
			Source jobDocument   `json:"_source"`
			Sort   []interface{} `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// RecentJobs pages through the index with search_after, newest first.
func (c *ElasticsearchJobCatalog) RecentJobs(ctx context.Context, since int64) ([]models.JobPosting, error) {
	var (
		jobs        []models.JobPosting
		searchAfter []interface{}
	)
	for {
		query := map[string]interface{}{
			"size": c.pageSize,
			"query": map[string]interface{}{
				"range": map[string]interface{}{
					"posted_timestamp": map[string]interface{}{"gte": since},
				},
			},
			"sort": []interface{}{
				map[string]interface{}{"posted_timestamp": "desc"},
				map[string]interface{}{"job_id": "asc"},
			},
		}
		if searchAfter != nil {
			query["search_after"] = searchAfter
		}

		var resp searchResponse
		if err := c.search(ctx, query, &resp); err != nil {
			return nil, err
		}

		hits := resp.Hits.Hits
		for _, hit := range hits {
			jobs = append(jobs, hit.Source.posting(hit.ID))
		}
		if len(hits) < c.pageSize {
			break
		}
		searchAfter = hits[len(hits)-1].Sort
		if len(searchAfter) == 0 {
			break
		}
	}

	c.logger.Debug("fetched recent jobs", map[string]interface{}{
		"since": since,
		"count": len(jobs),
	})
	return jobs, nil
}

func (c *ElasticsearchJobCatalog) search(ctx context.Context, query map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("encode job query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("search jobs: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("search jobs: %s", res.Status())
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode job search response: %w", err)
	}
	return nil
}

// Job returns one posting without its embedding.
func (c *ElasticsearchJobCatalog) Job(ctx context.Context, jobID string) (*models.JobPosting, bool, error) {
	req := esapi.GetRequest{
		Index:          c.index,
		DocumentID:     jobID,
		SourceExcludes: []string{"embedding"},
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, fmt.Errorf("get job %s: %s", jobID, res.Status())
	}

	var doc struct {
		ID     string      `json:"_id"`
		Found  bool        `json:"found"`
		Source jobDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	if !doc.Found {
		return nil, false, nil
	}

	job := doc.Source.posting(doc.ID)
	job.Vector = nil
	return &job, true, nil
}
