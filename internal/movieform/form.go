package movieform

// Appender receives records produced by a successful submit.
type Appender interface {
	Append(rec Record)
}

// Form owns a draft and its touched state. The zero value is an empty, untouched form.
// Form is not safe for concurrent use; callers serialize events.
type Form struct {
	draft   Draft
	touched Touched
}

// New returns an empty, untouched form.
func New() *Form {
	return &Form{}
}

// Draft returns a copy of the current values.
func (f *Form) Draft() Draft {
	return f.draft
}

// Touched returns a copy of the current touched state.
func (f *Form) Touched() Touched {
	return f.touched
}

// SetField updates a value. Validity is derived on demand, so nothing else changes.
func (f *Form) SetField(field Field, value string) {
	f.draft.set(field, value)
}

// Blur marks a field as touched. Calling it again has no further effect.
func (f *Form) Blur(field Field) {
	f.touched.set(field)
}

// IsFieldInvalid reports whether a required field is empty. Description is always valid.
func (f *Form) IsFieldInvalid(field Field) bool {
	return fieldInvalid(f.draft, field)
}

// IsErrorVisible reports whether the inline error for a field should be shown.
func (f *Form) IsErrorVisible(field Field) bool {
	return f.touched.Get(field) && f.IsFieldInvalid(field)
}

// IsSubmittable reports whether every required field currently has a value.
func (f *Form) IsSubmittable() bool {
	for _, field := range RequiredFields {
		if f.IsFieldInvalid(field) {
			return false
		}
	}
	return true
}

// Submit appends a record built from the draft and resets the form. When the draft is not
// submittable it touches every required field instead, leaving the values and the list as
// they were.
func (f *Form) Submit(list Appender) (Record, bool) {
	if !f.IsSubmittable() {
		for _, field := range RequiredFields {
			f.touched.set(field)
		}
		return Record{}, false
	}

	rec := Record(f.draft)
	list.Append(rec)
	f.Reset()
	return rec, true
}

// Reset returns the form to its initial-load state.
func (f *Form) Reset() {
	f.draft = Draft{}
	f.touched = Touched{}
}

func fieldInvalid(d Draft, field Field) bool {
	return field.Required() && len(d.Get(field)) == 0
}
