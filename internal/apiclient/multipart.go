package apiclient

import (
	"bytes"
	"mime/multipart"

	"github.com/pkg/errors"
)

// FilePart is a file sent in a multipart body
type FilePart struct {
	Field string
	Name  string
	Data  []byte
}

type formField struct {
	name  string
	value string
}

// Form is an ordered multipart payload
type Form struct {
	fields []formField
	files  []FilePart
}

// Set appends a text field
func (f *Form) Set(name, value string) {
	f.fields = append(f.fields, formField{name: name, value: value})
}

// AddFile appends a file part. Several files may share a field name.
func (f *Form) AddFile(field, name string, data []byte) {
	f.files = append(f.files, FilePart{Field: field, Name: name, Data: data})
}

// Value returns the first value set for name
func (f *Form) Value(name string) (string, bool) {
	for _, fld := range f.fields {
		if fld.name == name {
			return fld.value, true
		}
	}
	return "", false
}

// Files returns the file parts under field
func (f *Form) Files(field string) []FilePart {
	var out []FilePart
	for _, p := range f.files {
		if p.Field == field {
			out = append(out, p)
		}
	}
	return out
}

// Len is the number of text fields plus file parts
func (f *Form) Len() int {
	return len(f.fields) + len(f.files)
}

func (f *Form) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, fld := range f.fields {
		if err := w.WriteField(fld.name, fld.value); err != nil {
			return nil, "", errors.Wrapf(err, "failed to write field %s", fld.name)
		}
	}
	for _, p := range f.files {
		part, err := w.CreateFormFile(p.Field, p.Name)
		if err != nil {
			return nil, "", errors.Wrapf(err, "failed to create file part %s", p.Field)
		}
		if _, err := part.Write(p.Data); err != nil {
			return nil, "", errors.Wrapf(err, "failed to write file part %s", p.Field)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "failed to close multipart body")
	}
	return buf, w.FormDataContentType(), nil
}
