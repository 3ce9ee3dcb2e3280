// Package movieform implements the add-movie form: four text fields, blur-driven error
// visibility and submit gating.
package movieform

import (
	"github.com/kuitang/movieform/internal/errs"
)

// ImdbTitleBaseURL is the prefix of every outbound movie link.
const ImdbTitleBaseURL = "https://www.imdb.com/title/"

// Field names one of the form inputs. The string values match the DOM field names.
type Field string

const (
	Title       Field = "title"
	Description Field = "description"
	ImgURL      Field = "imgUrl"
	ImdbID      Field = "imdbId"
)

// Fields lists every form field in display order.
var Fields = []Field{Title, Description, ImgURL, ImdbID}

// RequiredFields lists the fields that gate submission.
var RequiredFields = []Field{Title, ImgURL, ImdbID}

// ParseField converts a DOM field name into a Field.
func ParseField(name string) (Field, error) {
	switch f := Field(name); f {
	case Title, Description, ImgURL, ImdbID:
		return f, nil
	default:
		return "", errs.New(errs.InvalidArgument, "unknown field: "+name)
	}
}

// Required reports whether the field must be non-empty to submit.
func (f Field) Required() bool {
	return f != Description
}

// Label returns the human-readable label shown next to the input.
func (f Field) Label() string {
	switch f {
	case Title:
		return "Title"
	case Description:
		return "Description"
	case ImgURL:
		return "Image URL"
	case ImdbID:
		return "Imdb ID"
	default:
		return string(f)
	}
}

// ErrorMessage is the inline error text shown when the field is empty after blur.
// Optional fields have no message.
func (f Field) ErrorMessage() string {
	if !f.Required() {
		return ""
	}
	return f.Label() + " is required"
}

// Draft holds the in-progress values of the form.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImgURL      string `json:"imgUrl"`
	ImdbID      string `json:"imdbId"`
}

// Get returns the value of a field.
func (d Draft) Get(f Field) string {
	switch f {
	case Title:
		return d.Title
	case Description:
		return d.Description
	case ImgURL:
		return d.ImgURL
	case ImdbID:
		return d.ImdbID
	default:
		return ""
	}
}

func (d *Draft) set(f Field, value string) {
	switch f {
	case Title:
		d.Title = value
	case Description:
		d.Description = value
	case ImgURL:
		d.ImgURL = value
	case ImdbID:
		d.ImdbID = value
	}
}

// Touched records which fields have lost focus at least once since the last reset.
type Touched struct {
	Title       bool `json:"title"`
	Description bool `json:"description"`
	ImgURL      bool `json:"imgUrl"`
	ImdbID      bool `json:"imdbId"`
}

// Get reports whether a field is touched.
func (t Touched) Get(f Field) bool {
	switch f {
	case Title:
		return t.Title
	case Description:
		return t.Description
	case ImgURL:
		return t.ImgURL
	case ImdbID:
		return t.ImdbID
	default:
		return false
	}
}

func (t *Touched) set(f Field) {
	switch f {
	case Title:
		t.Title = true
	case Description:
		t.Description = true
	case ImgURL:
		t.ImgURL = true
	case ImdbID:
		t.ImdbID = true
	}
}

// Record is a submitted movie. It is never modified after creation.
type Record struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImgURL      string `json:"imgUrl"`
	ImdbID      string `json:"imdbId"`
}

// ImdbURL returns the outbound IMDb link for the movie.
func (r Record) ImdbURL() string {
	return ImdbTitleBaseURL + r.ImdbID
}

// Validate checks the required-field rule for records that did not come from a form,
// such as seed catalog entries.
func (r Record) Validate() error {
	d := Draft(r)
	for _, f := range RequiredFields {
		if fieldInvalid(d, f) {
			return errs.New(errs.InvalidArgument, f.ErrorMessage())
		}
	}
	return nil
}
