package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"
)

const (
	apiTimeout = 30 * time.Second

	// Confluence answers some cookie-authenticated requests with 403 when the
	// client does not look like a browser.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// confluenceClient wraps the Confluence REST API with a cookie-authenticated
// HTTP client.
type confluenceClient struct {
	baseURL string
	http    *http.Client
}

func newConfluenceClient(baseURL string, cookies []*http.Cookie) (*confluenceClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if len(cookies) > 0 {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
		}
		jar.SetCookies(u, cookies)
	}
	return &confluenceClient{
		baseURL: baseURL,
		http:    &http.Client{Jar: jar, Timeout: apiTimeout},
	}, nil
}

// pageMeta is one entry of the space content listing.
type pageMeta struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Status    string         `json:"status"`
	Ancestors []ancestorMeta `json:"ancestors"`
	History   struct {
		CreatedBy struct {
			DisplayName string `json:"displayName"`
		} `json:"createdBy"`
	} `json:"history"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type ancestorMeta struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// contentPage is the full page payload with the rendered body and the
// attachment listing expanded.
type contentPage struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Body   struct {
		View struct {
			Value string `json:"value"`
		} `json:"view"`
	} `json:"body"`
	Space struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"space"`
	Ancestors []ancestorMeta `json:"ancestors"`
	History   struct {
		CreatedBy struct {
			DisplayName string `json:"displayName"`
		} `json:"createdBy"`
		LastUpdated struct {
			By struct {
				DisplayName string `json:"displayName"`
			} `json:"by"`
			When string `json:"when"`
		} `json:"lastUpdated"`
	} `json:"history"`
	Children struct {
		Attachment struct {
			Results []attachmentMeta `json:"results"`
		} `json:"attachment"`
	} `json:"children"`
}

type attachmentMeta struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Metadata struct {
		MediaType string `json:"mediaType"`
	} `json:"metadata"`
}

type spaceMeta struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// listPages fetches one batch of page metadata for a space.
func (c *confluenceClient) listPages(spaceKey string, start, limit int) ([]pageMeta, error) {
	q := url.Values{}
	q.Set("type", "page")
	q.Set("spaceKey", spaceKey)
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("expand", "version,ancestors,history,status")

	var out struct {
		Results []pageMeta `json:"results"`
	}
	if err := c.getJSON("/rest/api/content?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// getPage fetches a single page with its rendered body, ancestors, history
// and attachment metadata.
func (c *confluenceClient) getPage(pageID string) (*contentPage, error) {
	var out contentPage
	path := "/rest/api/content/" + pageID + "?expand=body.view,children.attachment,ancestors,history,version,space"
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *confluenceClient) getSpace(spaceKey string) (*spaceMeta, error) {
	var out spaceMeta
	if err := c.getJSON("/rest/api/space/"+spaceKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *confluenceClient) getJSON(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// attachmentsFromMeta collects the attachment listing of a page into the
// exporter's own record type.
func attachmentsFromMeta(page *contentPage) []Attachment {
	results := page.Children.Attachment.Results
	if len(results) == 0 {
		return nil
	}
	attachments := make([]Attachment, 0, len(results))
	for _, meta := range results {
		mediaType := meta.Metadata.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		attachments = append(attachments, Attachment{
			ID:        meta.ID,
			Title:     meta.Title,
			MediaType: mediaType,
		})
	}
	return attachments
}
