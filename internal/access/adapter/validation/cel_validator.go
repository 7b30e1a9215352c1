// Package validation checks caller payloads against the per-key rules
// declared in the schema.
package validation

import (
	"context"
	"fmt"
	"sort"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/logger"

	"github.com/google/cel-go/cel"
)

// CodeSchemaViolation marks payloads a rule rejected.
const CodeSchemaViolation = "SCHEMA_VIOLATION"

// Rules see the caller payload as "data", the operation name as "op" and
// the document key as "key".
const (
	varData = "data"
	varOp   = "op"
	varKey  = "key"
)

// CELValidator evaluates the CEL rule of each document key. Keys without
// a rule accept any payload.
type CELValidator struct {
	env      *cel.Env
	programs map[string]cel.Program
	rules    map[string]string
	log      logger.Logger
}

// Option configures a CELValidator.
type Option func(*CELValidator)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(v *CELValidator) { v.log = l }
}

// NewCELValidator compiles every rule declared in schema. A rule that
// does not compile to a boolean expression fails construction.
func NewCELValidator(schema *model.Schema, opts ...Option) (*CELValidator, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	v := &CELValidator{
		env:      env,
		programs: map[string]cel.Program{},
		rules:    map[string]string{},
		log:      logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.WithComponent("cel-validator")

	keys := schema.DocKeys()
	sort.Strings(keys)
	for _, key := range keys {
		shape, _ := schema.DocShape(key)
		if shape.Rule == "" {
			continue
		}
		prg, err := v.compile(shape.Rule)
		if err != nil {
			return nil, errors.NewValidationError("invalid document rule").
				WithCause(err).
				WithDetail("key", key).
				WithDetail("rule", shape.Rule)
		}
		v.programs[key] = prg
		v.rules[key] = shape.Rule
	}
	return v, nil
}

var _ repository.SchemaValidator = (*CELValidator)(nil)

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(varData, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(varOp, cel.StringType),
		cel.Variable(varKey, cel.StringType),
	)
}

func (v *CELValidator) compile(rule string) (cel.Program, error) {
	ast, issues := v.env.Parse(rule)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	checked, issues := v.env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !checked.OutputType().IsExactType(cel.BoolType) && !checked.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule yields %s, want bool", checked.OutputType())
	}
	return v.env.Program(checked)
}

// Validate evaluates the rule of key against data.
func (v *CELValidator) Validate(ctx context.Context, key string, op model.Operation, data map[string]model.Value) error {
	prg, ok := v.programs[key]
	if !ok {
		return nil
	}
	out, _, err := prg.ContextEval(ctx, map[string]interface{}{
		varData: payload(data),
		varOp:   string(op),
		varKey:  key,
	})
	if err != nil {
		v.log.WithContext(ctx).Debugf("rule of %s failed to evaluate on %s: %v", key, op, err)
		return v.violation(key, op).WithCause(err)
	}
	if allowed, isBool := out.Value().(bool); !isBool || !allowed {
		return v.violation(key, op)
	}
	return nil
}

func (v *CELValidator) violation(key string, op model.Operation) *errors.AppError {
	return errors.NewValidationError("payload rejected by document rule").
		WithCode(CodeSchemaViolation).
		WithDetail("key", key).
		WithDetail("operation", string(op)).
		WithDetail("rule", v.rules[key])
}

// payload renders data with instants as time.Time so rules can compare
// them as CEL timestamps.
func payload(data map[string]model.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, item := range data {
		out[k] = native(item)
	}
	return out
}

func native(v model.Value) interface{} {
	switch v.Kind() {
	case model.KindTimestamp:
		ts, _ := v.AsTimestamp()
		return ts.Time()
	case model.KindArray:
		items, _ := v.AsArray()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = native(item)
		}
		return out
	case model.KindMap:
		m, _ := v.AsMap()
		return payload(m)
	}
	return v.Interface()
}
