package movieform

// FieldView is the render state of a single input.
type FieldView struct {
	Name     Field  `json:"name"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	Required bool   `json:"required"`
	Error    string `json:"error,omitempty"`
}

// View is a point-in-time snapshot of the form for templates and JSON responses.
type View struct {
	Fields      []FieldView `json:"fields"`
	Submittable bool        `json:"submittable"`
}

// View snapshots the form. Error is set only for fields whose error is visible.
func (f *Form) View() View {
	v := View{
		Fields:      make([]FieldView, 0, len(Fields)),
		Submittable: f.IsSubmittable(),
	}
	for _, field := range Fields {
		fv := FieldView{
			Name:     field,
			Label:    field.Label(),
			Value:    f.draft.Get(field),
			Required: field.Required(),
		}
		if f.IsErrorVisible(field) {
			fv.Error = field.ErrorMessage()
		}
		v.Fields = append(v.Fields, fv)
	}
	return v
}

// VisibleErrors returns the fields whose errors are currently shown, in display order.
func (v View) VisibleErrors() []Field {
	var out []Field
	for _, fv := range v.Fields {
		if fv.Error != "" {
			out = append(out, fv.Name)
		}
	}
	return out
}

// Field returns the view of one field.
func (v View) Field(name Field) (FieldView, bool) {
	for _, fv := range v.Fields {
		if fv.Name == name {
			return fv, true
		}
	}
	return FieldView{}, false
}
