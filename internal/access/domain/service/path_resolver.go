package service

import (
	"strings"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/firestore"
)

// PathResolver binds parameters into path templates.
type PathResolver interface {
	// Resolve substitutes params into template. For collections the final
	// segment is never substituted. An unbound final placeholder yields a
	// path truncated before it with TrailingUnbound set; an unbound
	// placeholder anywhere earlier fails with errors.ErrIncompletePath.
	Resolve(template model.Template, params map[string]string, isCollection bool) (model.ResolvedPath, error)
}

type pathResolver struct{}

// NewPathResolver creates a new path resolver
func NewPathResolver() PathResolver {
	return &pathResolver{}
}

func (r *pathResolver) Resolve(template model.Template, params map[string]string, isCollection bool) (model.ResolvedPath, error) {
	return resolvePath(template, params, isCollection)
}

func resolvePath(template model.Template, params map[string]string, isCollection bool) (model.ResolvedPath, error) {
	bound := map[string]string{}
	if template.IsLiteral() {
		return model.ResolvedPath{Path: template.Raw, Params: bound}, nil
	}

	last := len(template.Segments) - 1
	out := make([]string, len(template.Segments))
	firstUnbound := -1
	for i, seg := range template.Segments {
		if !seg.IsParam() {
			out[i] = seg.Literal
			continue
		}
		if isCollection && i == last {
			out[i] = seg.String()
			if firstUnbound < 0 {
				firstUnbound = i
			}
			continue
		}
		v, ok := params[seg.Param]
		if !ok || v == model.AutoID {
			out[i] = seg.String()
			if firstUnbound < 0 {
				firstUnbound = i
			}
			continue
		}
		if !firestore.IsValidID(v) {
			return model.ResolvedPath{}, errors.NewValidationError("invalid path parameter").
				WithCause(errors.ErrInvalidPath).
				WithDetail("template", template.Raw).
				WithDetail("param", seg.Param).
				WithDetail("value", v)
		}
		out[i] = v
		bound[seg.Param] = v
	}

	switch {
	case firstUnbound < 0:
		return model.ResolvedPath{Path: strings.Join(out, "/"), Params: bound}, nil
	case firstUnbound < last:
		return model.ResolvedPath{}, errors.IncompletePath(template.Raw, template.Segments[firstUnbound].Param)
	default:
		return model.ResolvedPath{
			Path:            strings.Join(out[:last], "/"),
			TrailingUnbound: true,
			Params:          bound,
		}, nil
	}
}
