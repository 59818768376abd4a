package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"gristmigrate/internal/domain"
)

// ── Transformer ────────────────────────────────────────────
// A Transformer maps one source record into the field set of one target
// table. Implementations must not mutate the source record.

// AttachmentSource downloads files from the source document.
type AttachmentSource interface {
	DownloadAttachment(ctx context.Context, id int64) (*domain.Attachment, error)
}

// AttachmentSink uploads files to the target document.
type AttachmentSink interface {
	UploadAttachments(ctx context.Context, files []domain.Attachment) ([]int64, error)
}

// Env carries what field rules need beyond the record itself.
type Env struct {
	// Source reads whole source tables, to turn source reference ids into names.
	Source *TableCache
	// Target resolves names to target ids.
	Target *Resolver
	// SourceFiles and TargetFiles move attachments between documents.
	SourceFiles AttachmentSource
	TargetFiles AttachmentSink
	Log         zerolog.Logger
}

// Transformer processes a single record.
type Transformer interface {
	Transform(ctx context.Context, env *Env, rec domain.Record) (domain.Fields, error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(ctx context.Context, env *Env, rec domain.Record) (domain.Fields, error)

func (f TransformerFunc) Transform(ctx context.Context, env *Env, rec domain.Record) (domain.Fields, error) {
	return f(ctx, env, rec)
}

// FieldRule computes one target field from a source record.
type FieldRule interface {
	Target() string
	Apply(ctx context.Context, env *Env, rec domain.Record) (domain.Value, error)
}

// RecordTransformer applies an ordered list of field rules. Label names the
// source column used to identify the record in logs and errors.
type RecordTransformer struct {
	Name  string
	Label string
	Rules []FieldRule
}

func (t *RecordTransformer) Transform(ctx context.Context, env *Env, rec domain.Record) (domain.Fields, error) {
	out := make(domain.Fields, len(t.Rules))
	for _, rule := range t.Rules {
		v, err := rule.Apply(ctx, env, rec)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d (%s): field %s: %w", t.Name, rec.ID, t.label(rec), rule.Target(), err)
		}
		out[rule.Target()] = v
	}
	return out, nil
}

func (t *RecordTransformer) label(rec domain.Record) string {
	if t.Label == "" {
		return ""
	}
	return rec.Fields.Get(t.Label).String()
}

// Fields lists the target columns the transformer writes, in rule order.
func (t *RecordTransformer) Fields() []string {
	out := make([]string, len(t.Rules))
	for i, r := range t.Rules {
		out[i] = r.Target()
	}
	return out
}

// ── Scalar rules ───────────────────────────────────────────

type copyRule struct{ target, source string }

// Copy copies a source column into a target column, unchanged.
func Copy(target, source string) FieldRule { return copyRule{target: target, source: source} }

// Same copies a column whose id is identical on both sides.
func Same(col string) FieldRule { return copyRule{target: col, source: col} }

func (r copyRule) Target() string { return r.target }
func (r copyRule) Apply(_ context.Context, _ *Env, rec domain.Record) (domain.Value, error) {
	return rec.Fields.Get(r.source), nil
}

type constRule struct {
	target string
	value  domain.Value
}

// Const always writes value.
func Const(target string, value domain.Value) FieldRule {
	return constRule{target: target, value: value}
}

// Clear always writes no value.
func Clear(target string) FieldRule { return constRule{target: target} }

func (r constRule) Target() string { return r.target }
func (r constRule) Apply(context.Context, *Env, domain.Record) (domain.Value, error) {
	return r.value, nil
}

type deriveRule struct {
	target, source string
	fn             func(domain.Value) domain.Value
}

// Derive computes a target field from one source field with a pure function.
func Derive(target, source string, fn func(domain.Value) domain.Value) FieldRule {
	return deriveRule{target: target, source: source, fn: fn}
}

func (r deriveRule) Target() string { return r.target }
func (r deriveRule) Apply(_ context.Context, _ *Env, rec domain.Record) (domain.Value, error) {
	return r.fn(rec.Fields.Get(r.source)), nil
}

// FreeSolutionLabel is the source price label for free solutions.
const FreeSolutionLabel = "Solution gratuite"

// PriceCategory maps the source price label to the target price choice. An
// unset price stays unset.
func PriceCategory(v domain.Value) domain.Value {
	if isEmpty(v) {
		return domain.Null()
	}
	if s, ok := v.AsText(); ok && s == FreeSolutionLabel {
		return domain.Text("Gratuit")
	}
	return domain.Text("Payant")
}

// ── Reference rules ────────────────────────────────────────

// Lookup names the source table and column that hold the display name of a
// record referenced by id in the source document.
type Lookup struct {
	Table  string
	Column string
}

// RefSpec tells a reference rule where names resolve.
type RefSpec struct {
	// Table and Column identify the target records to match against.
	Table  string
	Column string
	// Via is set when the source field holds source record ids rather than names.
	Via *Lookup
	// Optional turns a failed lookup into no value instead of an error.
	Optional bool
}

type refRule struct {
	target, source string
	spec           RefSpec
	list           bool
}

// Ref resolves a single reference. Only the first element of a list source is used.
func Ref(target, source string, spec RefSpec) FieldRule {
	return refRule{target: target, source: source, spec: spec}
}

// RefList resolves every element of the source field and encodes the ids as a
// reference list, preserving order.
func RefList(target, source string, spec RefSpec) FieldRule {
	return refRule{target: target, source: source, spec: spec, list: true}
}

func (r refRule) Target() string { return r.target }

func (r refRule) Apply(ctx context.Context, env *Env, rec domain.Record) (domain.Value, error) {
	items := rec.Fields.Get(r.source).Items()
	if !r.list && len(items) > 1 {
		items = items[:1]
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, ok, err := r.resolve(ctx, env, item)
		if err != nil {
			return domain.Null(), err
		}
		if ok {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return domain.Null(), nil
	}
	if !r.list {
		return domain.Ref(ids[0]), nil
	}
	return domain.RefList(ids...), nil
}

func (r refRule) resolve(ctx context.Context, env *Env, item domain.Value) (int64, bool, error) {
	name, ok, err := r.name(ctx, env, item)
	if err != nil || !ok {
		return 0, false, err
	}

	id, err := env.Target.Resolve(ctx, r.spec.Table, r.spec.Column, name)
	if err != nil {
		var resErr *ResolutionError
		if r.spec.Optional && errors.As(err, &resErr) {
			env.Log.Warn().Str("table", resErr.Table).Str("value", resErr.Value).Str("field", r.target).Msg("optional reference not found")
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// name turns one element of the source field into the name to look up.
func (r refRule) name(ctx context.Context, env *Env, item domain.Value) (string, bool, error) {
	if isEmpty(item) {
		return "", false, nil
	}
	if s, ok := item.AsText(); ok {
		return s, true, nil
	}
	id, ok := item.RefID()
	if !ok {
		return "", false, fmt.Errorf("cannot resolve %s value %q", item.Kind(), item.String())
	}
	if r.spec.Via == nil {
		return "", false, fmt.Errorf("source holds record id %d but no lookup table is configured", id)
	}
	src, found, err := env.Source.Lookup(ctx, r.spec.Via.Table, id)
	if err != nil {
		return "", false, err
	}
	if !found {
		if r.spec.Optional {
			return "", false, nil
		}
		return "", false, fmt.Errorf("source record %s/%d: %w", r.spec.Via.Table, id, ErrNotFound)
	}
	name := src.Fields.Get(r.spec.Via.Column)
	if name.IsNull() || name.String() == "" {
		return "", false, nil
	}
	return name.String(), true, nil
}

type followRule struct {
	target, source string
	via            Lookup
}

// Follow reads a source reference and copies a column of the referenced
// source record, for example the name behind a catalog id.
func Follow(target, source string, via Lookup) FieldRule {
	return followRule{target: target, source: source, via: via}
}

func (r followRule) Target() string { return r.target }

func (r followRule) Apply(ctx context.Context, env *Env, rec domain.Record) (domain.Value, error) {
	v := rec.Fields.Get(r.source)
	if isEmpty(v) {
		return domain.Null(), nil
	}
	if s, ok := v.AsText(); ok {
		return domain.Text(s), nil
	}
	id, ok := v.RefID()
	if !ok {
		return domain.Null(), fmt.Errorf("cannot follow %s value %q", v.Kind(), v.String())
	}
	src, found, err := env.Source.Lookup(ctx, r.via.Table, id)
	if err != nil {
		return domain.Null(), err
	}
	if !found {
		return domain.Null(), fmt.Errorf("source record %s/%d: %w", r.via.Table, id, ErrNotFound)
	}
	return src.Fields.Get(r.via.Column), nil
}

// ── Attachment rule ────────────────────────────────────────

type attachmentRule struct{ target, source string }

// Attachment copies the first attachment of the source field into the target
// document and writes the new id as an attachment list.
func Attachment(target, source string) FieldRule {
	return attachmentRule{target: target, source: source}
}

func (r attachmentRule) Target() string { return r.target }

func (r attachmentRule) Apply(ctx context.Context, env *Env, rec domain.Record) (domain.Value, error) {
	v := rec.Fields.Get(r.source)
	var srcID int64
	if ids := v.IDs(); len(ids) > 0 {
		srcID = ids[0]
	} else if id, ok := v.RefID(); ok {
		srcID = id
	} else {
		return domain.Null(), nil
	}

	file, err := env.SourceFiles.DownloadAttachment(ctx, srcID)
	if err != nil {
		return domain.Null(), fmt.Errorf("download attachment %d: %w", srcID, err)
	}
	ids, err := env.TargetFiles.UploadAttachments(ctx, []domain.Attachment{*file})
	if err != nil {
		return domain.Null(), fmt.Errorf("upload %s: %w", file.FileName, err)
	}
	env.Log.Debug().Str("file", file.FileName).Int64("from", srcID).Ints64("to", ids).Msg("attachment copied")
	return domain.RefList(ids...), nil
}
