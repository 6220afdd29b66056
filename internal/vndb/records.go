package vndb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Field selections sent with each query.
const (
	searchFields = "id, title, image.url, released, description"
	detailFields = "id, title, image.url, released, description, rating, length_minutes, devstatus, " +
		"extlinks.url, screenshots.url, developers.id, developers.name, tags.id, tags.name"
)

// devStatusInDevelopment is the devstatus value VNDB uses for titles that are
// still being developed.
const devStatusInDevelopment = 1

// Query is the body of a POST /vn request.
type Query struct {
	Filters []any  `json:"filters"`
	Fields  string `json:"fields"`
	Results int    `json:"results,omitempty"`
}

type queryResponse struct {
	Results []record `json:"results"`
	More    bool     `json:"more"`
}

// record is one visual novel as returned by the API. Everything in it is
// untrusted; optional values stay nil when absent or null.
type record struct {
	ID            recordID   `json:"id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	Released      *string    `json:"released"`
	Rating        *float64   `json:"rating"`
	LengthMinutes *int       `json:"length_minutes"`
	DevStatus     *int       `json:"devstatus"`
	Image         *imageRef  `json:"image"`
	Screenshots   []imageRef `json:"screenshots"`
	Extlinks      []extlink  `json:"extlinks"`
	Developers    []named    `json:"developers"`
	Tags          []named    `json:"tags"`
}

type imageRef struct {
	URL string `json:"url"`
}

type extlink struct {
	URL string `json:"url"`
}

type named struct {
	ID   recordID `json:"id"`
	Name string   `json:"name"`
}

// recordID accepts ids encoded as JSON strings or numbers and keeps their
// string form.
type recordID string

func (id *recordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = recordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = recordID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = recordID(n.String())
	return nil
}

func (r record) imageURL() string {
	if r.Image == nil {
		return ""
	}
	return r.Image.URL
}
