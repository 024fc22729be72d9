// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/holomush/accounts/internal/auth"
)

var (
	errBadBody      = errors.New("invalid request body")
	errBodyTooLarge = errors.New("request body too large")
)

// Request bodies. Schemas are reflected from these types; the auth package
// still applies its own domain rules after schema validation.
type (
	registerRequest struct {
		Name     string  `json:"name" jsonschema:"minLength=1,maxLength=64"`
		Email    string  `json:"email" jsonschema:"minLength=1,maxLength=254"`
		Password string  `json:"password" jsonschema:"minLength=1,maxLength=128"`
		Avatar   *string `json:"avatar,omitempty" jsonschema:"minLength=1"`
	}

	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	updateUserRequest struct {
		Name  *string `json:"name,omitempty" jsonschema:"maxLength=64"`
		Email *string `json:"email,omitempty" jsonschema:"maxLength=254"`
	}
)

// schemas holds the compiled request schemas.
type schemas struct {
	register   *jschema.Schema
	login      *jschema.Schema
	updateUser *jschema.Schema
	printer    *message.Printer
}

func compileSchemas() (*schemas, error) {
	s := &schemas{printer: message.NewPrinter(language.English)}
	for _, entry := range []struct {
		name   string
		target any
		dst    **jschema.Schema
	}{
		{"register.json", &registerRequest{}, &s.register},
		{"login.json", &loginRequest{}, &s.login},
		{"update_user.json", &updateUserRequest{}, &s.updateUser},
	} {
		sch, err := compileSchema(entry.name, entry.target)
		if err != nil {
			return nil, err
		}
		*entry.dst = sch
	}
	return s, nil
}

func compileSchema(name string, target any) (*jschema.Schema, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	data, err := json.Marshal(r.Reflect(target))
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("schema", name).Wrap(err)
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("schema", name).Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	return sch, nil
}

// decode reads the body, validates it against sch and unmarshals it into dst.
// Schema violations become an *auth.ValidationError keyed by field.
func (s *schemas) decode(r *http.Request, sch *jschema.Schema, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code("HTTP_BODY_TOO_LARGE").With("limit", tooLarge.Limit).Wrap(errBodyTooLarge)
		}
		return oops.Code("HTTP_BODY_READ_FAILED").Wrap(errors.Join(errBadBody, err))
	}

	inst, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code("HTTP_BODY_INVALID").Wrap(errors.Join(errBadBody, err))
	}

	if err := sch.Validate(inst); err != nil {
		var ve *jschema.ValidationError
		if !errors.As(err, &ve) {
			return oops.Code("HTTP_BODY_INVALID").Wrap(errors.Join(errBadBody, err))
		}
		fields := &auth.ValidationError{}
		s.collect(ve, fields)
		return oops.Code("HTTP_SCHEMA_VIOLATION").Wrap(fields)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code("HTTP_BODY_INVALID").Wrap(errors.Join(errBadBody, err))
	}
	return nil
}

// collect flattens the leaf causes of ve into field messages.
func (s *schemas) collect(ve *jschema.ValidationError, out *auth.ValidationError) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			s.collect(cause, out)
		}
		return
	}

	field := strings.Join(ve.InstanceLocation, ".")
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		for _, missing := range k.Missing {
			out.Add(joinField(field, missing), "is required")
		}
		return
	case *kind.Type:
		if field == "" {
			out.Add("body", "must be a JSON object")
			return
		}
	}
	if field == "" {
		field = "body"
	}
	out.Add(field, ve.ErrorKind.LocalizedString(s.printer))
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
